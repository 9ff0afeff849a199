package media

import (
	"context"
	"sync"
)

// StaticPermission, kararı önceden verilmiş izin sağlayıcısı.
// Request çağrısı kullanıcıya sormadan Allow değerini döner ve hatırlar.
type StaticPermission struct {
	Allow bool

	mu      sync.Mutex
	granted bool
}

// NewStaticPermission, constructor. granted başlangıç durumudur.
func NewStaticPermission(granted, allowOnRequest bool) *StaticPermission {
	return &StaticPermission{Allow: allowOnRequest, granted: granted}
}

func (p *StaticPermission) Granted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.granted
}

func (p *StaticPermission) Request(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Allow {
		p.granted = true
	}
	return p.granted, nil
}

// PromptPermission, izni bir soru fonksiyonuyla (örn. terminal prompt'u) ister.
// Verilen izin oturum boyunca hatırlanır; red hatırlanmaz, bir sonraki
// denemede yeniden sorulur.
type PromptPermission struct {
	Ask func(ctx context.Context) (bool, error)

	mu      sync.Mutex
	granted bool
}

func (p *PromptPermission) Granted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.granted
}

func (p *PromptPermission) Request(ctx context.Context) (bool, error) {
	ok, err := p.Ask(ctx)
	if err != nil {
		return false, err
	}
	if ok {
		p.mu.Lock()
		p.granted = true
		p.mu.Unlock()
	}
	return ok, nil
}
