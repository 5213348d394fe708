package editor

import (
	"context"
	"sort"
	"strings"

	"github.com/systmms/knox/internal/secure"
	"github.com/systmms/knox/pkg/secretstore"
)

// Form is the editable view of a secret.
type Form struct {
	// Name is the label shown in the tree: the DisplayName tag, or the real
	// name when the tag is absent.
	Name string

	// Folder is the raw Folder tag value.
	Folder string

	Password string

	// Tags are the free-form tags sorted by name. Folder and DisplayName
	// never appear here.
	Tags []secretstore.Tag
}

// UpdateWorkflow edits an existing secret. The loaded value is held in a
// secure enclave until Close or a successful Submit.
type UpdateWorkflow struct {
	client   Client
	name     string
	props    secretstore.Properties
	original *secure.Value
	form     Form
	state    State
}

// OpenUpdate loads name from client and prepares its form.
func OpenUpdate(ctx context.Context, client Client, name string) (*UpdateWorkflow, error) {
	sec, err := client.GetSecret(ctx, name)
	if err != nil {
		return nil, err
	}

	form := Form{Name: sec.Name}
	for _, tag := range sec.Properties.SortedTags() {
		switch tag.Name {
		case secretstore.TagFolder:
			form.Folder = tag.Value
		case secretstore.TagDisplayName:
			if strings.TrimSpace(tag.Value) != "" {
				form.Name = tag.Value
			}
		default:
			form.Tags = append(form.Tags, tag)
		}
	}

	return &UpdateWorkflow{
		client:   client,
		name:     sec.Name,
		props:    sec.Properties.Clone(),
		original: secure.NewValue(sec.Value),
		form:     form,
	}, nil
}

// SecretName returns the real name of the secret being edited.
func (w *UpdateWorkflow) SecretName() string {
	return w.name
}

// Properties returns the properties loaded with the secret.
func (w *UpdateWorkflow) Properties() secretstore.Properties {
	return w.props.Clone()
}

// State returns the workflow state.
func (w *UpdateWorkflow) State() State {
	return w.state
}

// Form returns a copy of the loaded form including the current password.
func (w *UpdateWorkflow) Form() (Form, error) {
	f := w.form
	f.Tags = append([]secretstore.Tag(nil), w.form.Tags...)

	password, err := w.original.String()
	if err != nil {
		return Form{}, err
	}
	f.Password = password
	return f, nil
}

// Submit writes the edited form. A new version is cut only when the
// password differs from the loaded value.
func (w *UpdateWorkflow) Submit(ctx context.Context, f Form) (secretstore.Properties, error) {
	if w.state == StateDone {
		return secretstore.Properties{}, ErrFinished
	}
	if f.Password == "" {
		return secretstore.Properties{}, ValidationError{Field: "password", Message: "password cannot be empty"}
	}

	updatePassword := !w.original.Equal(f.Password)
	tags := OutgoingTags(w.name, f)

	props, err := w.client.UpdateSecret(ctx, w.name, updatePassword, f.Password, tags)
	if err != nil {
		return secretstore.Properties{}, err
	}

	w.state = StateDone
	w.props = props.Clone()
	w.original.Destroy()
	return props, nil
}

// Close destroys the loaded value. Safe to call more than once.
func (w *UpdateWorkflow) Close() {
	w.original.Destroy()
}

// OutgoingTags builds the tag list sent for an edit of realName. Free-form
// tags with a blank name or a reserved name (in any case) are dropped. The
// Folder tag is always present, "/" when the field is blank, so the vault
// never receives an empty tag set. DisplayName is sent only when the
// edited name differs from realName.
func OutgoingTags(realName string, f Form) []secretstore.Tag {
	tags := make([]secretstore.Tag, 0, len(f.Tags)+2)
	for _, tag := range f.Tags {
		name := strings.TrimSpace(tag.Name)
		if name == "" || strings.EqualFold(name, secretstore.TagFolder) || strings.EqualFold(name, secretstore.TagDisplayName) {
			continue
		}
		tags = append(tags, secretstore.Tag{Name: name, Value: tag.Value})
	}
	sort.SliceStable(tags, func(i, j int) bool { return tags[i].Name < tags[j].Name })

	folder := strings.TrimSpace(f.Folder)
	if folder == "" {
		folder = secretstore.RootFolder
	}
	tags = append(tags, secretstore.Tag{Name: secretstore.TagFolder, Value: folder})

	display := strings.TrimSpace(f.Name)
	if display != "" && display != realName {
		tags = append(tags, secretstore.Tag{Name: secretstore.TagDisplayName, Value: display})
	}
	return tags
}
