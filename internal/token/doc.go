// Package token turns input documents into the node tree rules are applied
// to.
//
// Documents are YAML (JSON is accepted as a YAML subset) and are parsed via
// yaml.Node so every token keeps the line and column it came from. Each
// token also tracks the rule contexts attached to it, so a caller can ask
// any node for the issues currently raised against it.
package token
