package enums

// FulfillmentStep names one post-order side effect.
type FulfillmentStep string

const (
	StepNotificationRecord FulfillmentStep = "notification_record"
	StepEnrich             FulfillmentStep = "enrich"
	StepInvoicePDF         FulfillmentStep = "invoice_pdf"
	StepEmail              FulfillmentStep = "email"
	StepPush               FulfillmentStep = "push"
	StepCart               FulfillmentStep = "cart"
)

func (s FulfillmentStep) String() string { return string(s) }
