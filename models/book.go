// Package models defines the items handed to the pipeline by the crawler.
package models

// Book is the metadata scraped from a novel's index page.
type Book struct {
	ID            int64  `json:"id" bson:"_id" db:"id"`
	Name          string `json:"name" bson:"name" db:"name"`
	Description   string `json:"description" bson:"description" db:"description"`
	PublishedTime string `json:"published_time" bson:"published_time" db:"published_time"`
	ModifiedTime  string `json:"modified_time" bson:"modified_time" db:"modified_time"`
	CoverURL      string `json:"cover_url" bson:"cover_url" db:"cover_url"`
	Likes         int    `json:"likes" bson:"likes" db:"likes"`
}

// Chapter is a single chapter page belonging to a Book.
type Chapter struct {
	ID             int64  `json:"id" bson:"_id" db:"id"`
	Name           string `json:"name" bson:"name" db:"name"`
	ParentBookID   int64  `json:"parent_book_id" bson:"parent_book_id" db:"parent_book_id"`
	ParentBookName string `json:"parent_book_name" bson:"parent_book_name" db:"parent_book_name"`
	ArticleHTML    string `json:"article_html" bson:"article_html" db:"article_html"`
	ArticleFooter  string `json:"article_footer,omitempty" bson:"article_footer,omitempty" db:"article_footer"`
}
