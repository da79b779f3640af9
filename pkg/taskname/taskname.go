package taskname

const (
	// Arrears tasks
	ArrearsReconcileRun = "arrears:reconcile:run"

	// Notification tasks
	NotifyDispatch = "notify:dispatch"
)
