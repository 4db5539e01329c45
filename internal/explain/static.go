package explain

import "context"

const staticResponse = `SUMMARY:
An abnormal log pattern was detected.

WHY IT MATTERS:
The frequency deviates significantly from historical behavior.

WHERE TO LOOK:
- Recent deployments
- Upstream dependencies
- Service configuration

CONFIDENCE:
0.50
`

// Static is a Completer that always returns the same generic explanation.
// It keeps the report shape intact when no model is configured.
type Static struct{}

func (Static) Complete(context.Context, string) (string, error) {
	return staticResponse, nil
}
