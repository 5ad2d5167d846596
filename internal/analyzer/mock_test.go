package analyzer

import (
	"context"
	"sync"
)

// mockCmd records calls and returns configured results in order.
type mockCmd struct {
	mu      sync.Mutex
	calls   []Command
	results []mockResult
	callIdx int
}

type mockResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Err      error
}

func (m *mockCmd) Run(_ context.Context, cmd Command) (Output, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, cmd)
	if m.callIdx >= len(m.results) {
		return Output{}, nil
	}
	r := m.results[m.callIdx]
	m.callIdx++
	return Output{Stdout: r.Stdout, Stderr: r.Stderr, ExitCode: r.ExitCode}, r.Err
}

const slitherFixture = `{
  "success": true,
  "error": null,
  "results": {
    "detectors": [
      {
        "check": "reentrancy-eth",
        "impact": "High",
        "confidence": "Medium",
        "description": "Reentrancy in Vault.withdraw() (contracts/Vault.sol#12-20):\n\tExternal calls:\n",
        "elements": [
          {"type": "function", "name": "withdraw", "source_mapping": {"filename_short": "contracts/Vault.sol", "lines": [12, 13, 14, 20]}}
        ]
      },
      {
        "check": "constable-states",
        "impact": "Optimization",
        "confidence": "High",
        "description": "Vault.owner should be constant",
        "elements": [
          {"type": "variable", "name": "owner", "source_mapping": {"filename_short": "contracts/Vault.sol", "lines": [5]}}
        ]
      },
      {
        "check": "solc-version",
        "impact": "Informational",
        "confidence": "High",
        "description": "Pragma version^0.8.0 allows old versions",
        "elements": []
      },
      {
        "check": "arbitrary-send-eth",
        "impact": "High",
        "confidence": "Medium",
        "description": "Vault.sweep() sends eth to arbitrary user",
        "elements": [
          {"type": "function", "name": "sweep", "source_mapping": {"filename_short": "contracts/Vault.sol", "lines": [30, 31]}},
          {"type": "node", "name": "to.transfer", "source_mapping": {"filename_short": "contracts/Vault.sol", "lines": [31]}}
        ]
      }
    ]
  }
}`
