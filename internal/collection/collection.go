// Package collection mirrors the server's article set. Entries are only
// ever changed from confirmed server responses.
package collection

import (
	"sync"

	"article-desk/internal/model"

	"go.uber.org/zap"
)

// Collection is an ordered list of articles, unique by ID, plus the
// article currently selected for editing.
type Collection struct {
	mu       sync.RWMutex
	articles []model.Article
	editing  int
	selected bool
	logger   *zap.Logger
}

func New(logger *zap.Logger) *Collection {
	return &Collection{logger: logger}
}

// Replace swaps the whole list for a freshly listed one. Duplicate IDs in
// the listing keep their first occurrence.
func (c *Collection) Replace(list []model.Article) {
	seen := make(map[int]struct{}, len(list))
	articles := make([]model.Article, 0, len(list))
	for _, a := range list {
		if _, dup := seen[a.ID]; dup {
			c.logger.Warn("Duplicate article id in listing", zap.Int("article_id", a.ID))
			continue
		}
		seen[a.ID] = struct{}{}
		articles = append(articles, a)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.articles = articles
}

// Append adds a newly created article. If a listing that finished first
// already brought it in, the entry is refreshed in place instead.
func (c *Collection) Append(a model.Article) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if i := c.index(a.ID); i >= 0 {
		c.articles[i] = a
		return
	}
	c.articles = append(c.articles, a)
}

// Update replaces the entry with the given id. It reports false, and
// changes nothing, when no such entry exists.
func (c *Collection) Update(id int, a model.Article) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.index(id)
	if i < 0 {
		c.logger.Warn("Updated article is not in the collection", zap.Int("article_id", id))
		return false
	}
	if a.ID != id {
		c.logger.Warn("Update response names a different article",
			zap.Int("article_id", id), zap.Int("response_id", a.ID))
		return false
	}
	c.articles[i] = a
	return true
}

// Remove deletes the entry with the given id.
func (c *Collection) Remove(id int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.index(id)
	if i < 0 {
		c.logger.Warn("Deleted article is not in the collection", zap.Int("article_id", id))
		return false
	}
	c.articles = append(c.articles[:i:i], c.articles[i+1:]...)
	return true
}

// Articles returns a copy of the current list.
func (c *Collection) Articles() []model.Article {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]model.Article(nil), c.articles...)
}

func (c *Collection) Get(id int) (model.Article, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i := c.index(id); i >= 0 {
		return c.articles[i], true
	}
	return model.Article{}, false
}

func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.articles)
}

// Select marks id as the article being edited. Unknown ids are ignored.
func (c *Collection) Select(id int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.index(id) < 0 {
		c.logger.Warn("Cannot edit unknown article", zap.Int("article_id", id))
		return false
	}
	c.editing, c.selected = id, true
	return true
}

func (c *Collection) ClearSelection() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.editing, c.selected = 0, false
}

// Selection returns the id being edited, if any.
func (c *Collection) Selection() (int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.editing, c.selected
}

// Current returns the article being edited. It reports false when nothing
// is selected or the selected entry has since disappeared.
func (c *Collection) Current() (model.Article, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.selected {
		return model.Article{}, false
	}
	if i := c.index(c.editing); i >= 0 {
		return c.articles[i], true
	}
	return model.Article{}, false
}

// Reset empties the collection and drops the selection.
func (c *Collection) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.articles = nil
	c.editing, c.selected = 0, false
}

// index must be called with c.mu held.
func (c *Collection) index(id int) int {
	for i, a := range c.articles {
		if a.ID == id {
			return i
		}
	}
	return -1
}
