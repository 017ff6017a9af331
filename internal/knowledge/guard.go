package knowledge

import (
	"context"

	"golang.org/x/time/rate"
)

// ProviderGuard 模型服务调用保护：先限流，再经熔断器发出
type ProviderGuard struct {
	breaker *CircuitBreaker
	limiter *rate.Limiter
}

// NewProviderGuard breaker 与 limiter 均可为 nil
func NewProviderGuard(breaker *CircuitBreaker, limiter *rate.Limiter) *ProviderGuard {
	return &ProviderGuard{breaker: breaker, limiter: limiter}
}

// NewLimiter requestsPerSecond <= 0 时不限流
func NewLimiter(requestsPerSecond float64, burst int) *rate.Limiter {
	if requestsPerSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
}

// Do 等待令牌后执行调用
func (g *ProviderGuard) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	if g.breaker == nil {
		return fn(ctx)
	}
	return g.breaker.Do(ctx, fn)
}

// GuardedEmbedder 受保护的嵌入实现
type GuardedEmbedder struct {
	next  Embedder
	guard *ProviderGuard
}

// NewGuardedEmbedder 包装嵌入实现
func NewGuardedEmbedder(next Embedder, guard *ProviderGuard) *GuardedEmbedder {
	return &GuardedEmbedder{next: next, guard: guard}
}

func (g *GuardedEmbedder) Embed(ctx context.Context, text string) (Vector, error) {
	var vec Vector
	err := g.guard.Do(ctx, func(ctx context.Context) error {
		var err error
		vec, err = g.next.Embed(ctx, text)
		return err
	})
	return vec, err
}

// EmbedBatch 下游不支持批量时逐条调用
func (g *GuardedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]Vector, error) {
	batcher, ok := g.next.(BatchEmbedder)
	if !ok {
		out := make([]Vector, len(texts))
		for i, text := range texts {
			vec, err := g.Embed(ctx, text)
			if err != nil {
				return nil, err
			}
			out[i] = vec
		}
		return out, nil
	}

	var vectors []Vector
	err := g.guard.Do(ctx, func(ctx context.Context) error {
		var err error
		vectors, err = batcher.EmbedBatch(ctx, texts)
		return err
	})
	return vectors, err
}

// GuardedGenerator 受保护的生成实现
type GuardedGenerator struct {
	next  Generator
	guard *ProviderGuard
}

// NewGuardedGenerator 包装生成实现
func NewGuardedGenerator(next Generator, guard *ProviderGuard) *GuardedGenerator {
	return &GuardedGenerator{next: next, guard: guard}
}

func (g *GuardedGenerator) Generate(ctx context.Context, system, user string) (string, error) {
	var text string
	err := g.guard.Do(ctx, func(ctx context.Context) error {
		var err error
		text, err = g.next.Generate(ctx, system, user)
		return err
	})
	return text, err
}
