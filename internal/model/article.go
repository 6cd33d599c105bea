package model

// Topic values the article service accepts.
const (
	TopicJavaScript = "JavaScript"
	TopicReact      = "React"
	TopicNode       = "Node"
)

// Article is an entry of the remote collection. The ID is assigned by the
// server and never changes once created.
type Article struct {
	ID    int    `json:"article_id" yaml:"article_id"`
	Title string `json:"title" yaml:"title"`
	Text  string `json:"text" yaml:"text"`
	Topic string `json:"topic" yaml:"topic"`
}

// Draft is the body sent to create or update an article.
// It has no ID: ids only ever come back from the server.
type Draft struct {
	Title string `json:"title" yaml:"title"`
	Text  string `json:"text" yaml:"text"`
	Topic string `json:"topic" yaml:"topic"`
}

// DraftOf returns the editable fields of a.
func DraftOf(a Article) Draft {
	return Draft{Title: a.Title, Text: a.Text, Topic: a.Topic}
}

// Merge returns d with empty fields filled in from base.
// Used when editing, where a blank answer keeps the current value.
func (d Draft) Merge(base Draft) Draft {
	if d.Title == "" {
		d.Title = base.Title
	}
	if d.Text == "" {
		d.Text = base.Text
	}
	if d.Topic == "" {
		d.Topic = base.Topic
	}
	return d
}
