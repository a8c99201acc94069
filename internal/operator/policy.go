package operator

// DecideActions maps signals to remediation actions with the fixed policy
// table. It is pure and order-preserving: at most one action per signal, in
// input order, no I/O. The switch is exhaustive over SignalType so adding a
// signal type forces a policy decision here.
func DecideActions(signals []Signal) []Action {
	actions := make([]Action, 0, len(signals))
	for _, sig := range signals {
		switch sig.Type {
		case SignalHealthDegraded:
			// Only act on serious degradation; low-grade noise is left to the
			// next scan.
			if sig.Severity == SeverityHigh || sig.Severity == SeverityCritical {
				actions = append(actions, Action{
					Type:        ActionRunProvisioning,
					WorkspaceID: sig.WorkspaceID,
					Params:      map[string]string{"reason": "health_degraded"},
				})
			}
		case SignalProvisioningNeeded:
			actions = append(actions, Action{
				Type:        ActionRunProvisioning,
				WorkspaceID: sig.WorkspaceID,
				Params:      map[string]string{"reason": "retry_failed_job"},
			})
		case SignalFollowupDue:
			actions = append(actions, Action{
				Type:        ActionSendFollowup,
				WorkspaceID: sig.WorkspaceID,
			})
		case SignalWebhookFailed:
			actions = append(actions, Action{
				Type:        ActionRetryWebhook,
				WorkspaceID: sig.WorkspaceID,
			})
		case SignalIntegrationOffline:
			actions = append(actions, Action{
				Type:        ActionRestartIntegration,
				WorkspaceID: sig.WorkspaceID,
				Params:      map[string]string{"integration": sig.Metadata["integration"]},
			})
		}
	}
	return actions
}
