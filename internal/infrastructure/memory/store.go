// Package memory is an in-process docstore.Store used by tests and by local
// runs with STORE_DRIVER=memory. Documents go through the same attributevalue
// marshalling as the DynamoDB backend so tags behave identically.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopacc-api/internal/docstore"
)

type item = map[string]types.AttributeValue

var _ docstore.Store = (*Store)(nil)

type Store struct {
	mu   sync.RWMutex
	docs map[docstore.Collection]map[string]item
}

func New() *Store {
	return &Store{docs: make(map[docstore.Collection]map[string]item)}
}

func (s *Store) Get(_ context.Context, c docstore.Collection, key string, out any, opts ...docstore.ReadOption) error {
	s.mu.RLock()
	it, ok := s.docs[c][key]
	s.mu.RUnlock()
	if !ok {
		return docstore.ErrNotFound
	}
	return attributevalue.UnmarshalMap(project(it, docstore.Apply(opts).Fields), out)
}

func (s *Store) Put(_ context.Context, c docstore.Collection, doc any) error {
	it, err := attributevalue.MarshalMap(doc)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", c, err)
	}
	key, err := keyOf(c, it)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.docs[c] == nil {
		s.docs[c] = make(map[string]item)
	}
	s.docs[c][key] = it
	return nil
}

func (s *Store) Update(_ context.Context, c docstore.Collection, key string, fields map[string]any) error {
	return s.update(c, key, nil, fields)
}

func (s *Store) UpdateIf(_ context.Context, c docstore.Collection, key string, cond docstore.Condition, fields map[string]any) error {
	return s.update(c, key, &cond, fields)
}

func (s *Store) update(c docstore.Collection, key string, cond *docstore.Condition, fields map[string]any) error {
	if len(fields) == 0 {
		return fmt.Errorf("no fields to update")
	}
	set := make(item, len(fields))
	for k, v := range fields {
		av, err := attributevalue.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal field %s: %w", k, err)
		}
		set[k] = av
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.docs[c][key]
	if !ok {
		return docstore.ErrNotFound
	}
	if cond != nil {
		if err := check(cur, *cond); err != nil {
			return err
		}
	}
	next := maps.Clone(cur)
	maps.Copy(next, set)
	s.docs[c][key] = next
	return nil
}

func (s *Store) Delete(_ context.Context, c docstore.Collection, key string) error {
	s.mu.Lock()
	delete(s.docs[c], key)
	s.mu.Unlock()
	return nil
}

func (s *Store) DeleteIf(_ context.Context, c docstore.Collection, key string, cond docstore.Condition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.docs[c][key]
	if !ok {
		return docstore.ErrNotFound
	}
	if err := check(cur, cond); err != nil {
		return err
	}
	delete(s.docs[c], key)
	return nil
}

func check(cur item, cond docstore.Condition) error {
	want, err := attributevalue.Marshal(cond.Value)
	if err != nil {
		return fmt.Errorf("marshal condition %s: %w", cond.Field, err)
	}
	if !equalAV(cur[cond.Field], want) {
		return docstore.ErrConditionFailed
	}
	return nil
}

func (s *Store) QueryEqual(_ context.Context, c docstore.Collection, field string, value any, out any, opts ...docstore.ReadOption) error {
	want, err := attributevalue.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", field, err)
	}
	return s.collect(c, func(it item) bool { return equalAV(it[field], want) }, docstore.Apply(opts), out)
}

func (s *Store) List(_ context.Context, c docstore.Collection, out any, opts ...docstore.ReadOption) error {
	return s.collect(c, func(item) bool { return true }, docstore.Apply(opts), out)
}

// collect walks documents in key order so results are stable.
func (s *Store) collect(c docstore.Collection, match func(item) bool, ro docstore.ReadOptions, out any) error {
	s.mu.RLock()
	docs := s.docs[c]
	keys := slices.Sorted(maps.Keys(docs))
	found := []item{}
	for _, k := range keys {
		if ro.Limit > 0 && len(found) >= ro.Limit {
			break
		}
		if match(docs[k]) {
			found = append(found, project(docs[k], ro.Fields))
		}
	}
	s.mu.RUnlock()
	return attributevalue.UnmarshalListOfMaps(found, out)
}

func keyOf(c docstore.Collection, it item) (string, error) {
	attr := docstore.KeyAttr(c)
	if attr == "" {
		return "", fmt.Errorf("unknown collection %q", c)
	}
	s, ok := it[attr].(*types.AttributeValueMemberS)
	if !ok || s.Value == "" {
		return "", fmt.Errorf("put %s: document has no %s", c, attr)
	}
	return s.Value, nil
}

func project(it item, fields []string) item {
	if len(fields) == 0 {
		return it
	}
	out := make(item, len(fields))
	for _, f := range fields {
		if v, ok := it[f]; ok {
			out[f] = v
		}
	}
	return out
}

func equalAV(a, b types.AttributeValue) bool {
	switch x := a.(type) {
	case *types.AttributeValueMemberS:
		y, ok := b.(*types.AttributeValueMemberS)
		return ok && x.Value == y.Value
	case *types.AttributeValueMemberN:
		y, ok := b.(*types.AttributeValueMemberN)
		return ok && x.Value == y.Value
	case *types.AttributeValueMemberBOOL:
		y, ok := b.(*types.AttributeValueMemberBOOL)
		return ok && x.Value == y.Value
	case *types.AttributeValueMemberNULL:
		_, ok := b.(*types.AttributeValueMemberNULL)
		return ok
	}
	return false
}
