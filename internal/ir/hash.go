package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainComponent is the domain prefix for component fingerprints.
// Version suffix enables future algorithm migration.
const DomainComponent = "sandcalc/component/v1"

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte (0x00) separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ComponentFingerprint hashes the parts of a component that define a version:
// kind, source, argument list and pinned dependencies.
//
// ComputedResult is excluded. It is derived data, not part of the identity.
func ComponentFingerprint(c Component) (string, error) {
	args := make([]any, len(c.Arguments))
	for i, a := range c.Arguments {
		args[i] = map[string]any{"name": a.Name, "default_value": a.DefaultValue}
	}
	deps := make([]any, len(c.DependencyIDs))
	for i, d := range c.DependencyIDs {
		deps[i] = d.Key()
	}

	kind := c.Kind
	if kind == "" {
		kind = KindValue
	}

	canonical, err := MarshalCanonical(map[string]any{
		"kind":           string(kind),
		"source":         c.Source,
		"arguments":      args,
		"dependency_ids": deps,
	})
	if err != nil {
		return "", fmt.Errorf("ComponentFingerprint: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainComponent, canonical), nil
}

// MustComponentFingerprint is like ComponentFingerprint but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustComponentFingerprint(c Component) string {
	fp, err := ComponentFingerprint(c)
	if err != nil {
		panic(err)
	}
	return fp
}
