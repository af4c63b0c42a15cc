package kb

import (
	"sort"
	"sync"
)

// Store 文档与分块的内存存储。文档和分块以 id 寻址，
// 分块只随文档整体提交、整体删除，不存在孤儿分块。
type Store struct {
	mu     sync.RWMutex
	docs   map[string]*Document
	chunks map[string]*Chunk
}

// NewStore 创建空存储
func NewStore() *Store {
	return &Store{
		docs:   make(map[string]*Document),
		chunks: make(map[string]*Chunk),
	}
}

// PutDocument 登记文档元数据
func (s *Store) PutDocument(doc Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.ID] = &doc
}

// SetStatus 更新文档状态
func (s *Store) SetStatus(docID string, status DocumentStatus, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc, ok := s.docs[docID]; ok {
		doc.Status = status
		doc.FailReason = reason
	}
}

// CommitChunks 原子提交一个文档的全部分块并置为 ready。
// 要么全部可见，要么全部不可见。
func (s *Store) CommitChunks(docID string, chunks []Chunk) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range chunks {
		ch := chunks[i]
		s.chunks[ch.ID] = &ch
	}
	if doc, ok := s.docs[docID]; ok {
		doc.ChunkCount = len(chunks)
		doc.Status = DocumentStatusReady
		doc.FailReason = ""
	}
}

// GetDocument 按 id 取文档
func (s *Store) GetDocument(docID string) (Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[docID]
	if !ok {
		return Document{}, false
	}
	return *doc, true
}

// GetChunk 按 id 取分块
func (s *Store) GetChunk(chunkID string) (Chunk, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.chunks[chunkID]
	if !ok {
		return Chunk{}, false
	}
	return *ch, true
}

// ListDocuments 按上传时间排序返回全部文档
func (s *Store) ListDocuments() []Document {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]Document, 0, len(s.docs))
	for _, doc := range s.docs {
		docs = append(docs, *doc)
	}
	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].UploadedAt.Equal(docs[j].UploadedAt) {
			return docs[i].UploadedAt.Before(docs[j].UploadedAt)
		}
		return docs[i].ID < docs[j].ID
	})
	return docs
}

// ChunksForDocument 返回文档的全部分块，按 position 排序。
func (s *Store) ChunksForDocument(docID string) []Chunk {
	s.mu.RLock()
	var chunks []Chunk
	for _, ch := range s.chunks {
		if ch.DocumentID == docID {
			chunks = append(chunks, *ch)
		}
	}
	s.mu.RUnlock()

	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Position < chunks[j].Position })
	return chunks
}

// DeleteDocument 删除文档及其全部分块，返回被删分块 id 供索引清理。
func (s *Store) DeleteDocument(docID string) ([]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[docID]; !ok {
		return nil, false
	}

	var chunkIDs []string
	for id, ch := range s.chunks {
		if ch.DocumentID == docID {
			chunkIDs = append(chunkIDs, id)
			delete(s.chunks, id)
		}
	}
	delete(s.docs, docID)
	sort.Strings(chunkIDs)
	return chunkIDs, true
}

// Counts 文档数与分块数
func (s *Store) Counts() (docs, chunks int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs), len(s.chunks)
}
