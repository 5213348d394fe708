package fakes

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// SecretIterator yields secrets until it returns iterator.Done.
type SecretIterator = interface {
	Next() (*secretmanagerpb.Secret, error)
}

type gcpSecret struct {
	annotations map[string]string
	versions    [][]byte
	created     time.Time
}

// FakeGCPSecretManagerClient is an in-memory Secret Manager. Keys are full
// resource names (projects/P/secrets/S).
type FakeGCPSecretManagerClient struct {
	mu sync.Mutex

	// Errors maps "Method:secret" (short secret id) to an error to return.
	// Use an empty secret id for ListSecrets.
	Errors map[string]error
	// Calls counts invocations per method.
	Calls map[string]int
	// Closed is set by Close.
	Closed bool

	secrets map[string]*gcpSecret
	now     time.Time
}

// NewFakeGCPSecretManagerClient creates an empty fake.
func NewFakeGCPSecretManagerClient() *FakeGCPSecretManagerClient {
	return &FakeGCPSecretManagerClient{
		Errors:  make(map[string]error),
		Calls:   make(map[string]int),
		secrets: make(map[string]*gcpSecret),
		now:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// AddSecret seeds projects/<project>/secrets/<name> with one version.
func (f *FakeGCPSecretManagerClient) AddSecret(project, name, value string, annotations map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(time.Second)
	f.secrets[gcpResource(project, name)] = &gcpSecret{
		annotations: copyTags(annotations),
		versions:    [][]byte{[]byte(value)},
		created:     f.now,
	}
}

// VersionCount returns the number of versions of a secret.
func (f *FakeGCPSecretManagerClient) VersionCount(project, name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.secrets[gcpResource(project, name)]; ok {
		return len(s.versions)
	}
	return 0
}

// Annotations returns a copy of a secret's annotations.
func (f *FakeGCPSecretManagerClient) Annotations(project, name string) map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.secrets[gcpResource(project, name)]; ok {
		return copyTags(s.annotations)
	}
	return nil
}

func (f *FakeGCPSecretManagerClient) enter(method, resource string) error {
	f.Calls[method]++
	short := resource
	if i := strings.LastIndex(resource, "/secrets/"); i >= 0 {
		short = resource[i+len("/secrets/"):]
		if j := strings.Index(short, "/"); j >= 0 {
			short = short[:j]
		}
	} else {
		short = ""
	}
	return f.Errors[method+":"+short]
}

// ListSecrets returns an iterator over the project's secrets, sorted.
func (f *FakeGCPSecretManagerClient) ListSecrets(ctx context.Context, req *secretmanagerpb.ListSecretsRequest) SecretIterator {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ListSecrets", ""); err != nil {
		return &FakeSecretIterator{err: err}
	}

	var names []string
	for name := range f.secrets {
		if strings.HasPrefix(name, req.GetParent()+"/secrets/") {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var list []*secretmanagerpb.Secret
	for _, name := range names {
		list = append(list, f.toProto(name, f.secrets[name]))
	}
	return &FakeSecretIterator{secrets: list}
}

// GetSecret returns secret metadata.
func (f *FakeGCPSecretManagerClient) GetSecret(ctx context.Context, req *secretmanagerpb.GetSecretRequest) (*secretmanagerpb.Secret, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("GetSecret", req.GetName()); err != nil {
		return nil, err
	}
	s, ok := f.secrets[req.GetName()]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "Secret [%s] not found", req.GetName())
	}
	return f.toProto(req.GetName(), s), nil
}

// AccessSecretVersion returns a version payload. "latest" resolves to the
// newest version.
func (f *FakeGCPSecretManagerClient) AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("AccessSecretVersion", req.GetName()); err != nil {
		return nil, err
	}

	idx := strings.LastIndex(req.GetName(), "/versions/")
	if idx < 0 {
		return nil, status.Error(codes.InvalidArgument, "malformed version name")
	}
	secretName, version := req.GetName()[:idx], req.GetName()[idx+len("/versions/"):]
	s, ok := f.secrets[secretName]
	if !ok || len(s.versions) == 0 {
		return nil, status.Errorf(codes.NotFound, "Secret [%s] not found or has no versions", secretName)
	}

	n := len(s.versions)
	if version != "latest" {
		if _, err := fmt.Sscanf(version, "%d", &n); err != nil || n < 1 || n > len(s.versions) {
			return nil, status.Errorf(codes.NotFound, "Secret Version [%s] not found", req.GetName())
		}
	}
	return &secretmanagerpb.AccessSecretVersionResponse{
		Name:    fmt.Sprintf("%s/versions/%d", secretName, n),
		Payload: &secretmanagerpb.SecretPayload{Data: s.versions[n-1]},
	}, nil
}

// CreateSecret creates an empty secret.
func (f *FakeGCPSecretManagerClient) CreateSecret(ctx context.Context, req *secretmanagerpb.CreateSecretRequest) (*secretmanagerpb.Secret, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := req.GetParent() + "/secrets/" + req.GetSecretId()
	if err := f.enter("CreateSecret", name); err != nil {
		return nil, err
	}
	if _, ok := f.secrets[name]; ok {
		return nil, status.Errorf(codes.AlreadyExists, "Secret [%s] already exists", name)
	}
	f.now = f.now.Add(time.Second)
	s := &gcpSecret{annotations: copyTags(req.GetSecret().GetAnnotations()), created: f.now}
	f.secrets[name] = s
	return f.toProto(name, s), nil
}

// AddSecretVersion appends a version.
func (f *FakeGCPSecretManagerClient) AddSecretVersion(ctx context.Context, req *secretmanagerpb.AddSecretVersionRequest) (*secretmanagerpb.SecretVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("AddSecretVersion", req.GetParent()); err != nil {
		return nil, err
	}
	s, ok := f.secrets[req.GetParent()]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "Secret [%s] not found", req.GetParent())
	}
	s.versions = append(s.versions, append([]byte(nil), req.GetPayload().GetData()...))
	f.now = f.now.Add(time.Second)
	return &secretmanagerpb.SecretVersion{
		Name:       fmt.Sprintf("%s/versions/%d", req.GetParent(), len(s.versions)),
		CreateTime: timestamppb.New(f.now),
		State:      secretmanagerpb.SecretVersion_ENABLED,
	}, nil
}

// UpdateSecret applies the annotations field mask.
func (f *FakeGCPSecretManagerClient) UpdateSecret(ctx context.Context, req *secretmanagerpb.UpdateSecretRequest) (*secretmanagerpb.Secret, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := req.GetSecret().GetName()
	if err := f.enter("UpdateSecret", name); err != nil {
		return nil, err
	}
	s, ok := f.secrets[name]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "Secret [%s] not found", name)
	}
	for _, path := range req.GetUpdateMask().GetPaths() {
		if path == "annotations" {
			s.annotations = copyTags(req.GetSecret().GetAnnotations())
		}
	}
	return f.toProto(name, s), nil
}

// DeleteSecret removes a secret permanently.
func (f *FakeGCPSecretManagerClient) DeleteSecret(ctx context.Context, req *secretmanagerpb.DeleteSecretRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("DeleteSecret", req.GetName()); err != nil {
		return err
	}
	if _, ok := f.secrets[req.GetName()]; !ok {
		return status.Errorf(codes.NotFound, "Secret [%s] not found", req.GetName())
	}
	delete(f.secrets, req.GetName())
	return nil
}

// Close marks the client closed.
func (f *FakeGCPSecretManagerClient) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

func (f *FakeGCPSecretManagerClient) toProto(name string, s *gcpSecret) *secretmanagerpb.Secret {
	return &secretmanagerpb.Secret{
		Name:        name,
		Annotations: copyTags(s.annotations),
		CreateTime:  timestamppb.New(s.created),
	}
}

func gcpResource(project, name string) string {
	return "projects/" + project + "/secrets/" + name
}

// FakeSecretIterator iterates over a fixed list of secrets.
type FakeSecretIterator struct {
	secrets []*secretmanagerpb.Secret
	index   int
	err     error
}

// NewFakeSecretIterator creates an iterator that yields secrets, then err
// or iterator.Done.
func NewFakeSecretIterator(secrets []*secretmanagerpb.Secret, err error) *FakeSecretIterator {
	return &FakeSecretIterator{secrets: secrets, err: err}
}

// Next returns the next secret.
func (it *FakeSecretIterator) Next() (*secretmanagerpb.Secret, error) {
	if it.index < len(it.secrets) {
		s := it.secrets[it.index]
		it.index++
		return s, nil
	}
	if it.err != nil {
		return nil, it.err
	}
	return nil, iterator.Done
}

// GCPPermissionDeniedError creates a PermissionDenied status error.
func GCPPermissionDeniedError() error {
	return status.Error(codes.PermissionDenied, "Permission 'secretmanager.secrets.list' denied")
}
