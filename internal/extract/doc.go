// Package extract turns newsletter HTML into articles.
//
// An article's title is the text of every element carrying the
// content-title class, and its content the text of every element carrying
// news-rsf-news-body, each joined with single spaces in document order.
package extract
