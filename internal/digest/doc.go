// Package digest runs the newsletter pipeline: fetch message bodies,
// extract articles, then ask the language model for a topic list and a
// summary. Stages run sequentially; the first failure aborts the run.
package digest
