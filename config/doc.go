// Package config loads the simmirror client configuration.
//
// Configuration starts from Default and is layered from JSON or YAML files,
// later layers overriding earlier ones key by key. Environment variables
// prefixed with SIMMIRROR_ override stream addresses and the NATS event sink.
//
//	loader := config.NewLoader()
//	loader.AddLayer("configs/base.yaml")
//	loader.AddLayer("configs/local.json")
//	cfg, err := loader.Load()
//
// Duration fields accept Go duration strings ("2s", "150ms") in either
// format. SafeConfig guards a configuration shared between goroutines;
// Get always returns a deep copy.
package config
