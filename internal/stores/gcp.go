package stores

import (
	"context"
	"errors"
	"fmt"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/fieldmaskpb"

	"github.com/systmms/knox/internal/logging"
	"github.com/systmms/knox/pkg/secretstore"
)

// GCPSecretIterator yields secrets until it returns iterator.Done.
type GCPSecretIterator = interface {
	Next() (*secretmanagerpb.Secret, error)
}

// GCPSecretManagerAPI is the subset of the Secret Manager client used by
// GCPStore. It allows for mocking in tests.
type GCPSecretManagerAPI interface {
	ListSecrets(ctx context.Context, req *secretmanagerpb.ListSecretsRequest) GCPSecretIterator
	GetSecret(ctx context.Context, req *secretmanagerpb.GetSecretRequest) (*secretmanagerpb.Secret, error)
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest) (*secretmanagerpb.AccessSecretVersionResponse, error)
	CreateSecret(ctx context.Context, req *secretmanagerpb.CreateSecretRequest) (*secretmanagerpb.Secret, error)
	AddSecretVersion(ctx context.Context, req *secretmanagerpb.AddSecretVersionRequest) (*secretmanagerpb.SecretVersion, error)
	UpdateSecret(ctx context.Context, req *secretmanagerpb.UpdateSecretRequest) (*secretmanagerpb.Secret, error)
	DeleteSecret(ctx context.Context, req *secretmanagerpb.DeleteSecretRequest) error
	Close() error
}

// gcpClient adapts *secretmanager.Client to GCPSecretManagerAPI.
type gcpClient struct {
	c *secretmanager.Client
}

func (g gcpClient) ListSecrets(ctx context.Context, req *secretmanagerpb.ListSecretsRequest) GCPSecretIterator {
	return g.c.ListSecrets(ctx, req)
}

func (g gcpClient) GetSecret(ctx context.Context, req *secretmanagerpb.GetSecretRequest) (*secretmanagerpb.Secret, error) {
	return g.c.GetSecret(ctx, req)
}

func (g gcpClient) AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	return g.c.AccessSecretVersion(ctx, req)
}

func (g gcpClient) CreateSecret(ctx context.Context, req *secretmanagerpb.CreateSecretRequest) (*secretmanagerpb.Secret, error) {
	return g.c.CreateSecret(ctx, req)
}

func (g gcpClient) AddSecretVersion(ctx context.Context, req *secretmanagerpb.AddSecretVersionRequest) (*secretmanagerpb.SecretVersion, error) {
	return g.c.AddSecretVersion(ctx, req)
}

func (g gcpClient) UpdateSecret(ctx context.Context, req *secretmanagerpb.UpdateSecretRequest) (*secretmanagerpb.Secret, error) {
	return g.c.UpdateSecret(ctx, req)
}

func (g gcpClient) DeleteSecret(ctx context.Context, req *secretmanagerpb.DeleteSecretRequest) error {
	return g.c.DeleteSecret(ctx, req)
}

func (g gcpClient) Close() error {
	return g.c.Close()
}

// GCPStore implements secretstore.Store for Secret Manager in one project.
// Tags are stored as secret annotations. Secret Manager has no soft delete
// and no content type; deletes are permanent.
type GCPStore struct {
	project string
	client  GCPSecretManagerAPI
	logger  *logging.Logger
}

// GCPOption is a functional option for configuring a GCPStore.
type GCPOption func(*GCPStore)

// WithGCPClient sets a custom Secret Manager client (for testing).
func WithGCPClient(client GCPSecretManagerAPI) GCPOption {
	return func(s *GCPStore) {
		s.client = client
	}
}

// WithGCPLogger sets the logger used for debug output.
func WithGCPLogger(logger *logging.Logger) GCPOption {
	return func(s *GCPStore) {
		s.logger = logger
	}
}

// NewGCPStore creates a store for project. clientOpts carry credentials.
func NewGCPStore(ctx context.Context, project string, clientOpts []option.ClientOption, opts ...GCPOption) (*GCPStore, error) {
	s := &GCPStore{
		project: project,
		logger:  logging.Discard(),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.client == nil {
		client, err := secretmanager.NewClient(ctx, clientOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create Secret Manager client: %w", err)
		}
		s.client = gcpClient{c: client}
	}

	return s, nil
}

// Name returns the project ID.
func (s *GCPStore) Name() string {
	return s.project
}

// Close releases the underlying gRPC connection.
func (s *GCPStore) Close() error {
	return s.client.Close()
}

// ListProperties lists every secret in the project.
func (s *GCPStore) ListProperties(ctx context.Context) ([]secretstore.Properties, error) {
	var out []secretstore.Properties

	it := s.client.ListSecrets(ctx, &secretmanagerpb.ListSecretsRequest{Parent: s.parent()})
	for {
		sec, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, s.classify("list", "", err)
		}
		out = append(out, gcpProperties(sec))
	}

	s.logger.Debug("Listed %d secrets in %s", len(out), s.project)
	return out, nil
}

// GetSecret reads the latest version of name.
func (s *GCPStore) GetSecret(ctx context.Context, name string) (secretstore.Secret, error) {
	s.logger.Debug("Fetching %s from %s", logging.Secret(name), s.project)

	meta, err := s.client.GetSecret(ctx, &secretmanagerpb.GetSecretRequest{Name: s.resource(name)})
	if err != nil {
		return secretstore.Secret{}, s.classify("get", name, err)
	}

	resp, err := s.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: s.resource(name) + "/versions/latest",
	})
	if err != nil {
		return secretstore.Secret{}, s.classify("get", name, err)
	}

	props := gcpProperties(meta)
	props.Version = versionID(resp.GetName())
	return secretstore.Secret{
		Name:       props.Name,
		Value:      string(resp.GetPayload().GetData()),
		Properties: props,
	}, nil
}

// SetSecret adds a version to name, creating the secret with automatic
// replication when it does not exist.
func (s *GCPStore) SetSecret(ctx context.Context, name, value string) (secretstore.Secret, error) {
	req := &secretmanagerpb.AddSecretVersionRequest{
		Parent:  s.resource(name),
		Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)},
	}

	version, err := s.client.AddSecretVersion(ctx, req)
	if status.Code(err) == codes.NotFound {
		_, err = s.client.CreateSecret(ctx, &secretmanagerpb.CreateSecretRequest{
			Parent:   s.parent(),
			SecretId: name,
			Secret: &secretmanagerpb.Secret{
				Replication: &secretmanagerpb.Replication{
					Replication: &secretmanagerpb.Replication_Automatic_{
						Automatic: &secretmanagerpb.Replication_Automatic{},
					},
				},
			},
		})
		if err != nil {
			return secretstore.Secret{}, s.classify("set", name, err)
		}
		version, err = s.client.AddSecretVersion(ctx, req)
	}
	if err != nil {
		return secretstore.Secret{}, s.classify("set", name, err)
	}

	meta, err := s.client.GetSecret(ctx, &secretmanagerpb.GetSecretRequest{Name: s.resource(name)})
	if err != nil {
		return secretstore.Secret{}, s.classify("set", name, err)
	}

	props := gcpProperties(meta)
	props.Version = versionID(version.GetName())
	return secretstore.Secret{Name: name, Value: value, Properties: props}, nil
}

// UpdateProperties replaces the annotations of the secret. Versions have
// no properties of their own, so props.Version is only echoed back.
func (s *GCPStore) UpdateProperties(ctx context.Context, props secretstore.Properties) (secretstore.Properties, error) {
	annotations := make(map[string]string, len(props.Tags))
	for k, v := range props.Tags {
		annotations[k] = v
	}

	updated, err := s.client.UpdateSecret(ctx, &secretmanagerpb.UpdateSecretRequest{
		Secret: &secretmanagerpb.Secret{
			Name:        s.resource(props.Name),
			Annotations: annotations,
		},
		UpdateMask: &fieldmaskpb.FieldMask{Paths: []string{"annotations"}},
	})
	if err != nil {
		return secretstore.Properties{}, s.classify("update", props.Name, err)
	}

	out := gcpProperties(updated)
	out.Version = props.Version
	return out, nil
}

// DeleteSecret deletes name and all of its versions.
func (s *GCPStore) DeleteSecret(ctx context.Context, name string) error {
	if err := s.client.DeleteSecret(ctx, &secretmanagerpb.DeleteSecretRequest{Name: s.resource(name)}); err != nil {
		return s.classify("delete", name, err)
	}
	return nil
}

// Validate lists at most one secret.
func (s *GCPStore) Validate(ctx context.Context) error {
	it := s.client.ListSecrets(ctx, &secretmanagerpb.ListSecretsRequest{Parent: s.parent(), PageSize: 1})
	if _, err := it.Next(); err != nil && !errors.Is(err, iterator.Done) {
		return s.classify("validate", "", err)
	}
	return nil
}

func (s *GCPStore) parent() string {
	return "projects/" + s.project
}

func (s *GCPStore) resource(name string) string {
	return s.parent() + "/secrets/" + name
}

func (s *GCPStore) classify(op, name string, err error) error {
	switch status.Code(err) {
	case codes.NotFound:
		return secretstore.NotFoundError{Store: s.project, Name: name, Err: err}
	case codes.AlreadyExists:
		return secretstore.ConflictError{Store: s.project, Name: name, Message: "secret already exists", Err: err}
	case codes.PermissionDenied, codes.Unauthenticated:
		return secretstore.AuthError{Store: s.project, Message: status.Convert(err).Message(), Err: err}
	}
	return secretstore.RemoteError{Store: s.project, Op: op, Err: err}
}

func gcpProperties(sec *secretmanagerpb.Secret) secretstore.Properties {
	name := sec.GetName()
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}

	p := secretstore.Properties{
		Name:    name,
		Tags:    make(map[string]string, len(sec.GetAnnotations())),
		Enabled: true,
	}
	for k, v := range sec.GetAnnotations() {
		p.Tags[k] = v
	}
	if ts := sec.GetCreateTime(); ts != nil {
		p.Created = ts.AsTime()
		p.Updated = p.Created
	}
	return p
}

func versionID(resource string) string {
	if i := strings.LastIndex(resource, "/versions/"); i >= 0 {
		return resource[i+len("/versions/"):]
	}
	return ""
}
