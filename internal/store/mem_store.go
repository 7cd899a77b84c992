package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

var _ EntityStore = (*MemStore)(nil)

// MemStore is an in-memory EntityStore used in unit tests.
type MemStore struct {
	mutex sync.RWMutex
	data  map[string]map[string]map[string]memEntity

	// NowFunc can be overridden in tests that exercise retention cutoffs.
	NowFunc func() time.Time
}

type memEntity struct {
	data      []byte
	createdAt time.Time
}

func NewMemStore() *MemStore {
	return &MemStore{
		data:    make(map[string]map[string]map[string]memEntity),
		NowFunc: time.Now,
	}
}

func (s *MemStore) partition(kind, partitionKey string) map[string]memEntity {
	kindData, ok := s.data[kind]
	if !ok {
		kindData = make(map[string]map[string]memEntity)
		s.data[kind] = kindData
	}
	partition, ok := kindData[partitionKey]
	if !ok {
		partition = make(map[string]memEntity)
		kindData[partitionKey] = partition
	}
	return partition
}

func (s *MemStore) Get(_ context.Context, kind, partitionKey, rowKey string) (*Entity, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	e, ok := s.data[kind][partitionKey][rowKey]
	if !ok {
		return nil, ErrEntityNotFound
	}
	return &Entity{
		PartitionKey: partitionKey,
		RowKey:       rowKey,
		Data:         e.data,
		CreatedAt:    e.createdAt,
	}, nil
}

func (s *MemStore) Create(_ context.Context, kind string, entity Entity) (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	partition := s.partition(kind, entity.PartitionKey)
	if _, exists := partition[entity.RowKey]; exists {
		return false, nil
	}
	partition[entity.RowKey] = memEntity{
		data:      entity.Data,
		createdAt: s.NowFunc(),
	}
	return true, nil
}

func (s *MemStore) Update(_ context.Context, kind string, entity Entity) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	partition := s.partition(kind, entity.PartitionKey)
	existing, ok := partition[entity.RowKey]
	if !ok {
		return ErrEntityNotFound
	}
	existing.data = entity.Data
	partition[entity.RowKey] = existing
	return nil
}

func (s *MemStore) Delete(_ context.Context, kind, partitionKey, rowKey string) (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	partition, ok := s.data[kind][partitionKey]
	if !ok {
		return false, nil
	}
	if _, exists := partition[rowKey]; !exists {
		return false, nil
	}
	delete(partition, rowKey)
	return true, nil
}

func (s *MemStore) QueryPartition(_ context.Context, kind, partitionKey string) ([]Entity, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var entities []Entity
	for rowKey, e := range s.data[kind][partitionKey] {
		entities = append(entities, Entity{
			PartitionKey: partitionKey,
			RowKey:       rowKey,
			Data:         e.data,
			CreatedAt:    e.createdAt,
		})
	}
	sort.Slice(entities, func(i, j int) bool {
		return entities[i].RowKey < entities[j].RowKey
	})
	return entities, nil
}

func (s *MemStore) QueryByRowKey(_ context.Context, kind, rowKey string) ([]Entity, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var entities []Entity
	for partitionKey, partition := range s.data[kind] {
		if e, ok := partition[rowKey]; ok {
			entities = append(entities, Entity{
				PartitionKey: partitionKey,
				RowKey:       rowKey,
				Data:         e.data,
				CreatedAt:    e.createdAt,
			})
		}
	}
	sort.Slice(entities, func(i, j int) bool {
		return entities[i].PartitionKey < entities[j].PartitionKey
	})
	return entities, nil
}

func (s *MemStore) DeleteInPartition(_ context.Context, kind, partitionKey string, rowKeys []string) (int64, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	partition, ok := s.data[kind][partitionKey]
	if !ok {
		return 0, nil
	}
	var deleted int64
	for _, rowKey := range rowKeys {
		if _, exists := partition[rowKey]; exists {
			delete(partition, rowKey)
			deleted++
		}
	}
	return deleted, nil
}

func (s *MemStore) DeletePartition(_ context.Context, kind, partitionKey string) (int64, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	partition, ok := s.data[kind][partitionKey]
	if !ok {
		return 0, nil
	}
	deleted := int64(len(partition))
	delete(s.data[kind], partitionKey)
	return deleted, nil
}

func (s *MemStore) DeleteOlderThan(_ context.Context, kind string, cutoff time.Time) (int64, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var deleted int64
	for _, partition := range s.data[kind] {
		for rowKey, e := range partition {
			if e.createdAt.Before(cutoff) {
				delete(partition, rowKey)
				deleted++
			}
		}
	}
	return deleted, nil
}

func (s *MemStore) Partitions(_ context.Context, kind string) ([]string, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var partitions []string
	for partitionKey, partition := range s.data[kind] {
		if len(partition) > 0 {
			partitions = append(partitions, partitionKey)
		}
	}
	sort.Strings(partitions)
	return partitions, nil
}
