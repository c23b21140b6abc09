// Package analysis provides the interface for analyzing job postings with
// external AI/LLM services. It abstracts the details of LLM API integration
// (Gemini), allowing the pipeline to score and summarize postings without
// coupling to a specific provider.
package analysis
