package common

// CreateItemRequest stores transport input for item creation.
type CreateItemRequest struct {
	Title  string `json:"title"`
	Status string `json:"status"`
}

// CreateSubItemRequest stores transport input for sub-item creation.
type CreateSubItemRequest struct {
	Title string `json:"title"`
}

// FieldRequest carries the new value of one item field.
type FieldRequest struct {
	Value string `json:"value"`
}

// AddCommentRequest stores transport input for comment creation.
type AddCommentRequest struct {
	Text string `json:"text"`
}

// ItemField names the item fields writable through FieldRequest.
type ItemField string

// ItemField values.
const (
	FieldStatus      ItemField = "status"
	FieldType        ItemField = "type"
	FieldDescription ItemField = "description"
	FieldAssignee    ItemField = "assignee"
	FieldImportance  ItemField = "importance"
	FieldDueDate     ItemField = "due_date"
)
