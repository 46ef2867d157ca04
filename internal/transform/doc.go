// Package transform holds the transformer registry and the chain composer.
// A chain is an ordered declaration of transformer codes and their options;
// Compose binds it to registered transformers once, and Chain.Apply pipes a
// value through every call. A code may be suffixed "#N" so the same
// transformer appears several times in one chain.
package transform
