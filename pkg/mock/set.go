package mock

import (
	"encoding/json"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// ErrDuplicateRequest is returned when a request with the same method and
// path is already in the set.
var ErrDuplicateRequest = errors.New("duplicate request")

// RequestSet is a set of requests keyed on (method, path). Iteration follows
// insertion order. The zero value is an empty set ready to use.
type RequestSet struct {
	index map[Key]int
	items []Request
}

// NewRequestSet builds a set from reqs, failing on the first duplicate.
func NewRequestSet(reqs ...Request) (*RequestSet, error) {
	s := &RequestSet{}
	for _, r := range reqs {
		if err := s.Add(r); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Add inserts r. It returns ErrDuplicateRequest if the key is taken.
func (s *RequestSet) Add(r Request) error {
	if s.index == nil {
		s.index = make(map[Key]int)
	}
	key := r.Key()
	if _, ok := s.index[key]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateRequest, key)
	}
	s.index[key] = len(s.items)
	s.items = append(s.items, r)
	return nil
}

// Get returns the request stored under key.
func (s *RequestSet) Get(key Key) (Request, bool) {
	if s == nil {
		return Request{}, false
	}
	i, ok := s.index[Key{Method: key.Method, Path: NormalizePath(key.Path)}]
	if !ok {
		return Request{}, false
	}
	return s.items[i], true
}

// Contains reports whether a request with key is in the set.
func (s *RequestSet) Contains(key Key) bool {
	_, ok := s.Get(key)
	return ok
}

// Len returns the number of requests.
func (s *RequestSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.items)
}

// All returns a copy of the requests in insertion order.
func (s *RequestSet) All() []Request {
	if s == nil {
		return nil
	}
	out := make([]Request, len(s.items))
	copy(out, s.items)
	return out
}

// Validate validates every request in the set.
func (s *RequestSet) Validate() error {
	if s == nil {
		return nil
	}
	var errs []error
	for i, r := range s.items {
		if err := r.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("requests[%d] (%s): %w", i, r.Key(), err))
		}
	}
	return errors.Join(errs...)
}

// MarshalJSON encodes the set as a list.
func (s RequestSet) MarshalJSON() ([]byte, error) {
	if s.items == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.items)
}

// UnmarshalJSON decodes a list, rejecting duplicates.
func (s *RequestSet) UnmarshalJSON(data []byte) error {
	var reqs []Request
	if err := json.Unmarshal(data, &reqs); err != nil {
		return err
	}
	return s.replace(reqs)
}

// MarshalYAML encodes the set as a list.
func (s RequestSet) MarshalYAML() (interface{}, error) {
	if s.items == nil {
		return []Request{}, nil
	}
	return s.items, nil
}

// UnmarshalYAML decodes a list, rejecting duplicates.
func (s *RequestSet) UnmarshalYAML(node *yaml.Node) error {
	var reqs []Request
	if err := node.Decode(&reqs); err != nil {
		return err
	}
	return s.replace(reqs)
}

func (s *RequestSet) replace(reqs []Request) error {
	fresh, err := NewRequestSet(reqs...)
	if err != nil {
		return err
	}
	*s = *fresh
	return nil
}
