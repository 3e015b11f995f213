package upload

import (
	"context"
	"io"
	"math"
	"sync"

	"portfolio/backend/internal/domain"
)

// tracker 把已发送字节数换算成单调不减的百分比事件
//
// 传输中最多报告 99，拿到公开地址后才报告 100。
type tracker struct {
	ctx   context.Context
	index int
	out   chan<- domain.Progress

	mu   sync.Mutex
	last int
}

func newTracker(ctx context.Context, index int, out chan<- domain.Progress) *tracker {
	return &tracker{ctx: ctx, index: index, out: out, last: -1}
}

func (t *tracker) start() {
	t.emit(0)
}

func (t *tracker) report(sent, total int64) {
	t.emit(min(percent(sent, total), 99))
}

func (t *tracker) finish() {
	t.emit(100)
}

func (t *tracker) emit(p int) {
	t.mu.Lock()
	if p <= t.last {
		t.mu.Unlock()
		return
	}
	t.last = p
	t.mu.Unlock()

	if t.out == nil {
		return
	}
	select {
	case t.out <- domain.Progress{Index: t.index, Percent: p}:
	case <-t.ctx.Done():
	}
}

// percent 计算 round(sent/total*100)，结果限制在 [0,100]
func percent(sent, total int64) int {
	if total <= 0 {
		return 0
	}
	p := int(math.Round(float64(sent) / float64(total) * 100))
	return max(0, min(p, 100))
}

// progressReader 统计读取的字节数
//
// 实现 io.Seeker，SDK 重试或计算校验和回退读取位置时计数同步回退。
type progressReader struct {
	r      io.ReadSeeker
	total  int64
	read   int64
	report func(sent, total int64)
}

func newProgressReader(r io.ReadSeeker, total int64, report func(sent, total int64)) *progressReader {
	return &progressReader{r: r, total: total, report: report}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.read += int64(n)
		p.report(p.read, p.total)
	}
	return n, err
}

func (p *progressReader) Seek(offset int64, whence int) (int64, error) {
	pos, err := p.r.Seek(offset, whence)
	if err == nil {
		p.read = pos
	}
	return pos, err
}
