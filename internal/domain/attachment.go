package domain

import (
	"bytes"
	"io"
	"os"
)

// FileHandle 是附件原始内容的不透明引用，每次 Open 都从头读取。
type FileHandle interface {
	Open() (io.ReadCloser, error)
}

// BytesHandle 以内存字节作为附件内容。
type BytesHandle []byte

// Open 实现 FileHandle。
func (b BytesHandle) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b)), nil
}

// Attachment 表示用户选择的一个待上传附件，创建后不再修改。
type Attachment struct {
	Index       int        `json:"index"`       // 在当前选择中的位置
	Name        string     `json:"name"`        // 文件名
	Size        int64      `json:"size"`        // 大小（字节）
	ContentType string     `json:"contentType"` // MIME类型，可能为空
	Handle      FileHandle `json:"-"`           // 原始内容
}

// UploadResult 表示一个附件上传成功后的公开地址。
type UploadResult struct {
	Index int    `json:"index"`
	URL   string `json:"url"`
}

// Progress 是单个附件的上传进度事件，Percent 取值 [0,100]。
type Progress struct {
	Index   int `json:"index"`
	Percent int `json:"percent"`
}

// TotalSize 计算附件总大小。
func TotalSize(files []Attachment) int64 {
	var total int64
	for _, f := range files {
		total += f.Size
	}
	return total
}

// PathHandle 以本地文件路径作为附件内容，供命令行使用。
type PathHandle string

// Open 实现 FileHandle。
func (p PathHandle) Open() (io.ReadCloser, error) {
	return os.Open(string(p))
}
