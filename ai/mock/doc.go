// Package mock provides test double implementations of AI service interfaces.
//
// This package contains mock implementations of ai.Embedder, ai.Completer,
// and ai.AIProvider for use in unit tests. The mocks allow tests to run without
// external AI service dependencies and enable controlled, deterministic behavior.
//
// # Usage in Tests
//
//	// Scripted completions keyed on the prompt
//	completer := mock.NewMockCompleter().
//	    WithRespondFunc(func(ctx context.Context, call mock.Call) (string, error) {
//	        if strings.Contains(call.System, "title") {
//	            return `{"title":"Notes","description":"Misc"}`, nil
//	        }
//	        return "", nil
//	    })
//
//	// Check call counts
//	count := completer.CallCount()
//
// # Default Behavior
//
//   - MockEmbedder: bag-of-words vectors; texts sharing words are similar
//   - MockCompleter: replies "{}" and records every call
//   - MockProvider: aggregates mock embedder and completer
package mock
