// Package models lists the OpenAI speech models the configured API key
// can use for the fill command.
package models
