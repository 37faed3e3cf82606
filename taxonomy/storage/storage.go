package storage

import (
	"context"
	"errors"
)

// State is a raw byte source for the tag catalog document.
type State interface {
	Load(ctx context.Context) ([]byte, error)
}

// TestState is a simple in-memory implementation for testing
type TestState struct {
	data  []byte
	err   error
	loads int
}

func NewTestState(data []byte) *TestState {
	return &TestState{data: data}
}

func NewTestStateWithError() *TestState {
	return &TestState{err: errors.New("not found")}
}

func (t *TestState) Load(ctx context.Context) ([]byte, error) {
	t.loads++
	if t.err != nil {
		return nil, t.err
	}
	return t.data, nil
}

// Loads reports how many times Load was called.
func (t *TestState) Loads() int { return t.loads }

// Set replaces the document returned by later loads.
func (t *TestState) Set(data []byte) { t.data = data }
