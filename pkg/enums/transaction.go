package enums

// Finance operation types folded into the daily rollup.
const (
	OperationPremiumCashback = "MarketplaceServicePremiumCashbackIndividualPoints"
	OperationInstallment     = "MarketplaceServiceItemInstallment"
)

// TransactionTypeOrders is the ledger type of order-linked operations.
const TransactionTypeOrders = "orders"

// OperationDeliveredToCustomer marks the hand-over of a posting to the buyer.
const OperationDeliveredToCustomer = "OperationAgentDeliveredToCustomer"
