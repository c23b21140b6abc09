// Package domain contains the core entities of the posting analysis
// pipeline: the Posting work item with its status lifecycle, and the
// TaskType categories of governed LLM calls. Domain types validate
// themselves and carry no infrastructure dependencies.
package domain
