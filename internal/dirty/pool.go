package dirty

import "errors"

// ErrPoolExhausted is returned by Checkout when every container is in use.
var ErrPoolExhausted = errors.New("dirty: pool exhausted")

// DefaultPoolSize is the number of containers a render loop keeps when the
// configuration does not say otherwise.
const DefaultPoolSize = 4

// Pool is a fixed set of containers, one per render target in flight.
// It is owned by a single render goroutine and never grows.
type Pool struct {
	free     []*Container
	size     int
	capacity int
}

// NewPool creates n containers of capacity k up front.
func NewPool(n, k int) *Pool {
	if n <= 0 {
		n = DefaultPoolSize
	}
	if k <= 0 {
		k = DefaultCapacity
	}
	p := &Pool{
		free:     make([]*Container, 0, n),
		size:     n,
		capacity: k,
	}
	for i := 0; i < n; i++ {
		c := NewContainer(k)
		c.pool = p
		p.free = append(p.free, c)
	}
	return p
}

// Checkout hands out an empty container.
func (p *Pool) Checkout() (*Container, error) {
	if len(p.free) == 0 {
		return nil, ErrPoolExhausted
	}
	c := p.free[len(p.free)-1]
	p.free[len(p.free)-1] = nil
	p.free = p.free[:len(p.free)-1]
	c.checkedOut = true
	c.Reset()
	return c, nil
}

// Return gives a container back to the pool.
// Panics if c belongs to another pool or was already returned.
func (p *Pool) Return(c *Container) {
	if c == nil || c.pool != p {
		panic("compositor: container does not belong to this pool")
	}
	if !c.checkedOut {
		panic("compositor: container returned twice")
	}
	c.checkedOut = false
	c.Reset()
	p.free = append(p.free, c)
}

// Size returns N, the total number of containers.
func (p *Pool) Size() int {
	return p.size
}

// Available returns the number of containers not checked out.
func (p *Pool) Available() int {
	return len(p.free)
}

// ContainerCap returns K for every container of this pool.
func (p *Pool) ContainerCap() int {
	return p.capacity
}
