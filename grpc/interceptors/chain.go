package interceptors

import (
	"slices"

	grpcmiddleware "github.com/grpc-ecosystem/go-grpc-middleware"
	"google.golang.org/grpc"
)

// Chain is an ordered, named list of interceptors that can be edited before it is
// committed into one interceptor. None of the operations are concurrency-safe.
type Chain[T any] struct {
	itemOrder []string
	items     map[string]T
	commit    func(...T) T
}

// UnaryServerInterceptorChain builds a grpc.UnaryServerInterceptor.
type UnaryServerInterceptorChain = Chain[grpc.UnaryServerInterceptor]

// StreamServerInterceptorChain builds a grpc.StreamServerInterceptor.
type StreamServerInterceptorChain = Chain[grpc.StreamServerInterceptor]

// UnaryClientInterceptorChain builds a grpc.UnaryClientInterceptor.
type UnaryClientInterceptorChain = Chain[grpc.UnaryClientInterceptor]

// NewUnaryServerInterceptorChain constructs a new interceptor chain that can be modified.
func NewUnaryServerInterceptorChain() *UnaryServerInterceptorChain {
	return newChain(grpcmiddleware.ChainUnaryServer)
}

// NewStreamServerInterceptorChain constructs a new interceptor chain that can be modified.
func NewStreamServerInterceptorChain() *StreamServerInterceptorChain {
	return newChain(grpcmiddleware.ChainStreamServer)
}

// NewUnaryClientInterceptorChain constructs a new interceptor chain that can be modified.
func NewUnaryClientInterceptorChain() *UnaryClientInterceptorChain {
	return newChain(grpcmiddleware.ChainUnaryClient)
}

func newChain[T any](commit func(...T) T) *Chain[T] {
	return &Chain[T]{items: make(map[string]T), commit: commit}
}

// Exists reports whether an interceptor is registered under id.
func (c *Chain[T]) Exists(id string) bool {
	_, ok := c.items[id]
	return ok
}

// IDs returns the interceptor ids in execution order.
func (c *Chain[T]) IDs() []string {
	return slices.Clone(c.itemOrder)
}

// Push adds a new interceptor onto the end of the chain.
// Returns false if an item with the specified ID already exists.
// Push("b", <inter>)
//
//	Before: a
//	After: a -> b
func (c *Chain[T]) Push(id string, inter T) bool {
	if c.Exists(id) {
		return false
	}
	c.items[id] = inter
	c.itemOrder = append(c.itemOrder, id)
	return true
}

// InsertAfter inserts an interceptor after the specified interceptor in the chain.
// InsertAfter("a", "c", <inter>)
//
//	Before: a -> b
//	After: a -> c -> b
func (c *Chain[T]) InsertAfter(afterID string, id string, inter T) bool {
	return c.insertAt(afterID, id, inter, 1)
}

// InsertBefore inserts a new interceptor before the specified interceptor in the chain.
// InsertBefore("b", "c", <inter>)
//
//	Before: a -> b
//	After: a -> c -> b
func (c *Chain[T]) InsertBefore(beforeID string, id string, inter T) bool {
	return c.insertAt(beforeID, id, inter, 0)
}

func (c *Chain[T]) insertAt(anchorID, id string, inter T, offset int) bool {
	if c.Exists(id) || !c.Exists(anchorID) {
		return false
	}
	index := slices.Index(c.itemOrder, anchorID) + offset
	c.itemOrder = slices.Insert(c.itemOrder, index, id)
	c.items[id] = inter
	return true
}

// Delete removes the specified interceptor from the chain.
// Delete("a")
//
//	Before: a -> b
//	After: b
func (c *Chain[T]) Delete(id string) bool {
	if !c.Exists(id) {
		return false
	}
	c.itemOrder = slices.DeleteFunc(c.itemOrder, func(s string) bool { return s == id })
	delete(c.items, id)
	return true
}

// Replace swaps the interceptor registered under id, keeping its position.
func (c *Chain[T]) Replace(id string, inter T) bool {
	if !c.Exists(id) {
		return false
	}
	c.items[id] = inter
	return true
}

// Commit chains the interceptors, in order, into one.
func (c *Chain[T]) Commit() T {
	interceptors := make([]T, 0, len(c.itemOrder))
	for _, id := range c.itemOrder {
		interceptors = append(interceptors, c.items[id])
	}
	return c.commit(interceptors...)
}
