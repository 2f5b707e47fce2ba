package incentives

// Discount is a named, use-limited percentage discount. Uses is decremented
// by exactly one per successful redemption and never goes negative.
type Discount struct {
	Code    string `dynamodbav:"code"` // PK
	Percent int    `dynamodbav:"percent"`
	Uses    int    `dynamodbav:"uses"`
}

// rewardKey is the fixed partition key of the singleton reward trigger.
const rewardKey = "reward"

// RewardTrigger is the standing "every N completed orders" rule. Setting it
// replaces the prior value.
type RewardTrigger struct {
	TriggerID      string `dynamodbav:"trigger_id"` // always rewardKey
	OrdersRequired int    `dynamodbav:"orders"`
	Percent        int    `dynamodbav:"percent"`
	Uses           int    `dynamodbav:"uses"`
}

// RewardStatus reports a requester's progress toward the next reward.
// Remaining == 0 means a reward is available now.
type RewardStatus struct {
	CompletedOrders int `json:"completed_orders"`
	OrdersRequired  int `json:"orders_required"`
	Remaining       int `json:"remaining"`
	Percent         int `json:"percent"`
	Uses            int `json:"uses"`
}
