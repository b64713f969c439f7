package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
)

// FirestoreStore keeps conversations in a Firestore collection, one
// document per session.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
	mu         sync.RWMutex
	closed     bool
}

// FirestoreConfig holds Firestore connection configuration.
type FirestoreConfig struct {
	// ProjectID is the GCP project (required).
	ProjectID string
	// Collection is the collection name (default: "robochat-sessions").
	Collection string
}

// NewFirestoreStore creates a Firestore-backed store.
func NewFirestoreStore(ctx context.Context, cfg FirestoreConfig) (*FirestoreStore, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("firestore project ID is required")
	}
	collection := cfg.Collection
	if collection == "" {
		collection = "robochat-sessions"
	}
	client, err := firestore.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}
	return &FirestoreStore{client: client, collection: collection}, nil
}

func (s *FirestoreStore) doc(sessionID string) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(sessionID)
}

// Save replaces the stored record.
func (s *FirestoreStore) Save(ctx context.Context, rec *Record) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrStorageClosed
	}
	if rec.SessionID == "" {
		return errors.New("session ID cannot be empty")
	}
	if _, err := s.doc(rec.SessionID).Set(ctx, rec); err != nil {
		return fmt.Errorf("firestore set: %w", err)
	}
	return nil
}

// Load retrieves a record by session ID.
func (s *FirestoreStore) Load(ctx context.Context, sessionID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStorageClosed
	}

	snap, err := s.doc(sessionID).Get(ctx)
	if err != nil {
		if snap != nil && !snap.Exists() {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("firestore get: %w", err)
	}

	var rec Record
	if err := snap.DataTo(&rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return &rec, nil
}

// Delete removes a stored conversation.
func (s *FirestoreStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrStorageClosed
	}

	snap, err := s.doc(sessionID).Get(ctx)
	if err != nil {
		if snap != nil && !snap.Exists() {
			return ErrSessionNotFound
		}
		return fmt.Errorf("firestore get: %w", err)
	}
	if _, err := s.doc(sessionID).Delete(ctx); err != nil {
		return fmt.Errorf("firestore delete: %w", err)
	}
	return nil
}

// List summarizes every stored conversation.
func (s *FirestoreStore) List(ctx context.Context) ([]Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStorageClosed
	}

	summaries := []Summary{}
	iter := s.client.Collection(s.collection).Documents(ctx)
	defer iter.Stop()
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore iterate: %w", err)
		}
		var rec Record
		if err := snap.DataTo(&rec); err != nil {
			continue
		}
		summaries = append(summaries, rec.Summarize())
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
	return summaries, nil
}

// Close releases the Firestore client.
func (s *FirestoreStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.client.Close()
}
