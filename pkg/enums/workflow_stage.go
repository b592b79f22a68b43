package enums

// WorkflowStage identifies one step of the inventory reconciliation state
// machine. Workflow errors carry the stage they were raised in.
type WorkflowStage string

const (
	StageCheckExisting     WorkflowStage = "CHECK_EXISTING"
	StageUploadNew         WorkflowStage = "UPLOAD_NEW"
	StageAwaitUploadDone   WorkflowStage = "AWAIT_UPLOAD_DONE"
	StageSyncQuantity      WorkflowStage = "SYNC_QUANTITY"
	StageAwaitQuantityDone WorkflowStage = "AWAIT_QUANTITY_DONE"
	StageFetchPrices       WorkflowStage = "FETCH_PRICES"
	StageSetPrices         WorkflowStage = "SET_PRICES"
	StageAwaitPriceDone    WorkflowStage = "AWAIT_PRICE_DONE"
	StageVerifyResults     WorkflowStage = "VERIFY_RESULTS"
)

func (s WorkflowStage) String() string { return string(s) }
