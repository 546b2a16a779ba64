package models

func (Product) TableName() string                 { return "products" }
func (VariantAxis) TableName() string             { return "variant_axes" }
func (VariantAxisOption) TableName() string       { return "variant_axis_options" }
func (VariantCombination) TableName() string      { return "variant_combinations" }
func (VariantCombinationValue) TableName() string { return "variant_combination_values" }
func (VariantCombinationImage) TableName() string { return "variant_combination_images" }
func (StockEntry) TableName() string              { return "stock_entries" }
func (Order) TableName() string                   { return "orders" }
func (OrderItem) TableName() string               { return "order_items" }
func (OrderItemBatch) TableName() string          { return "order_item_batches" }
func (OutboxEvent) TableName() string             { return "outbox_events" }
func (StockStatusHistory) TableName() string      { return "stock_entry_status_history" }
func (OutboxDLQ) TableName() string               { return "outbox_dlq" }
