package domain

import "github.com/bytedance/sonic"

// TaskPatch holds the fields of a partial task update. Nil pointers are left out of the
// request body. ClearAssignee sends an explicit null assignee.
type TaskPatch struct {
	Title         *string
	Description   *string
	Status        *Status
	AssigneeID    *int64
	ClearAssignee bool
}

// Empty reports whether the patch would change nothing.
func (p TaskPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Status == nil && p.AssigneeID == nil && !p.ClearAssignee
}

// OnlyStatus reports whether the patch touches the status and nothing else.
func (p TaskPatch) OnlyStatus() bool {
	return p.Status != nil && p.Title == nil && p.Description == nil && p.AssigneeID == nil && !p.ClearAssignee
}

// Fields lists the JSON keys the patch sets, in a stable order.
func (p TaskPatch) Fields() []string {
	var out []string
	if p.Title != nil {
		out = append(out, "title")
	}
	if p.Description != nil {
		out = append(out, "description")
	}
	if p.Status != nil {
		out = append(out, "status")
	}
	if p.AssigneeID != nil || p.ClearAssignee {
		out = append(out, "assigneeId")
	}
	return out
}

func (p TaskPatch) MarshalJSON() ([]byte, error) {
	body := make(map[string]any, 4)
	if p.Title != nil {
		body["title"] = *p.Title
	}
	if p.Description != nil {
		body["description"] = *p.Description
	}
	if p.Status != nil {
		body["status"] = *p.Status
	}
	switch {
	case p.AssigneeID != nil:
		body["assigneeId"] = *p.AssigneeID
	case p.ClearAssignee:
		body["assigneeId"] = nil
	}
	return sonic.ConfigStd.Marshal(body)
}

// Diff builds the patch that turns current into edit. Only differing fields are set.
func Diff(current Task, edit TaskEdit) TaskPatch {
	var p TaskPatch
	if edit.Title != current.Title {
		p.Title = String(edit.Title)
	}
	if edit.Description != current.DescriptionText() {
		p.Description = String(edit.Description)
	}
	if edit.Status != "" && edit.Status != current.Status {
		s := edit.Status
		p.Status = &s
	}
	switch {
	case edit.AssigneeID == nil && current.AssigneeID != nil:
		p.ClearAssignee = true
	case edit.AssigneeID != nil && !current.AssignedTo(*edit.AssigneeID):
		p.AssigneeID = Int64(*edit.AssigneeID)
	}
	return p
}
