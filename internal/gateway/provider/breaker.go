package provider

import (
	"context"
	"fmt"
	"time"

	"arbiter/internal/pkg/circuit"
)

// breakerProvider 给生成后端套一层熔断：后端持续失败时快速返回，
// 避免编排请求都卡在超时上。
type breakerProvider struct {
	inner   GenerationProvider
	breaker *circuit.Breaker
}

// WithBreaker 包装 GenerationProvider。
func WithBreaker(p GenerationProvider, threshold int, timeout time.Duration) GenerationProvider {
	if p == nil {
		return nil
	}
	return &breakerProvider{
		inner:   p,
		breaker: circuit.NewBreaker(p.ID(), threshold, timeout),
	}
}

func (p *breakerProvider) ID() string    { return p.inner.ID() }
func (p *breakerProvider) Enabled() bool { return p.inner.Enabled() }

func (p *breakerProvider) Generate(ctx context.Context, messages []Message) (Generation, error) {
	if !p.breaker.Allow() {
		return Generation{}, fmt.Errorf("%w: %s 熔断中", ErrUnavailable, p.inner.ID())
	}
	gen, err := p.inner.Generate(ctx, messages)
	if err != nil {
		if ctx.Err() == nil {
			p.breaker.RecordFailure()
		}
		return Generation{}, err
	}
	p.breaker.RecordSuccess()
	return gen, nil
}
