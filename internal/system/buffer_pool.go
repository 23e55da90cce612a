package system

import (
	"image"
	"sync"
	"sync/atomic"
)

// ImagePool переиспользует *image.RGBA одинакового размера для временных
// буферов композитинга, чтобы не нагружать GC на каждом кадре.
type ImagePool struct {
	pools  map[image.Rectangle]*sync.Pool
	mu     sync.RWMutex
	allocs atomic.Int64
}

func NewImagePool() *ImagePool {
	return &ImagePool{pools: make(map[image.Rectangle]*sync.Pool)}
}

var globalPool = NewImagePool()

// GetImage возвращает буфер из глобального пула. Содержимое не очищается.
func GetImage(rect image.Rectangle) *image.RGBA {
	return globalPool.Get(rect)
}

// PutImage возвращает буфер в глобальный пул.
func PutImage(img *image.RGBA) {
	globalPool.Put(img)
}

// PoolAllocations сообщает, сколько буферов глобальный пул создал с нуля.
func PoolAllocations() int64 {
	return globalPool.Allocations()
}

func (p *ImagePool) Get(rect image.Rectangle) *image.RGBA {
	p.mu.RLock()
	pool, exists := p.pools[rect]
	p.mu.RUnlock()

	if !exists {
		p.mu.Lock()
		// Double check
		pool, exists = p.pools[rect]
		if !exists {
			pool = &sync.Pool{
				New: func() any {
					p.allocs.Add(1)
					return image.NewRGBA(rect)
				},
			}
			p.pools[rect] = pool
		}
		p.mu.Unlock()
	}

	return pool.Get().(*image.RGBA)
}

func (p *ImagePool) Put(img *image.RGBA) {
	if img == nil {
		return
	}
	p.mu.RLock()
	pool, exists := p.pools[img.Rect]
	p.mu.RUnlock()

	if exists {
		pool.Put(img)
	}
}

func (p *ImagePool) Allocations() int64 {
	return p.allocs.Load()
}
