// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines the FSInfo struct, which stores file system metadata.
//
// Why store the file path?
//
// A pipeline may be split across several .hcl files. Every dataset parsed from
// them keeps the path of its source file so that validation errors (a stage
// going backwards, a duplicated pattern) can point at the file that has to be
// fixed.
package model

type FSInfo struct {
	FilePath string
}

func NewFSInfo(filePath string) *FSInfo {
	return &FSInfo{
		FilePath: filePath,
	}
}

// String returns the file path, or "<embedded>" for definitions that were
// not read from disk.
func (f *FSInfo) String() string {
	if f == nil || f.FilePath == "" {
		return "<embedded>"
	}
	return f.FilePath
}
