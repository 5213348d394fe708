package stores

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
	"github.com/systmms/knox/internal/logging"
	"github.com/systmms/knox/pkg/secretstore"
)

// awsRecoveryWindowDays keeps deleted secrets restorable, matching Key
// Vault soft delete.
const awsRecoveryWindowDays = 30

// SecretsManagerAPI is the subset of *secretsmanager.Client used by AWSStore.
type SecretsManagerAPI interface {
	ListSecrets(ctx context.Context, params *secretsmanager.ListSecretsInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.ListSecretsOutput, error)
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
	DescribeSecret(ctx context.Context, params *secretsmanager.DescribeSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.DescribeSecretOutput, error)
	CreateSecret(ctx context.Context, params *secretsmanager.CreateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.CreateSecretOutput, error)
	PutSecretValue(ctx context.Context, params *secretsmanager.PutSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error)
	UpdateSecret(ctx context.Context, params *secretsmanager.UpdateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.UpdateSecretOutput, error)
	TagResource(ctx context.Context, params *secretsmanager.TagResourceInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.TagResourceOutput, error)
	UntagResource(ctx context.Context, params *secretsmanager.UntagResourceInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.UntagResourceOutput, error)
	DeleteSecret(ctx context.Context, params *secretsmanager.DeleteSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.DeleteSecretOutput, error)
}

// STSAPI is used to check credentials before touching any secret.
type STSAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// AWSStore implements secretstore.Store for Secrets Manager in one region.
// Tags live on the secret rather than on a version, and the content type is
// kept in the secret description.
type AWSStore struct {
	region string
	client SecretsManagerAPI
	sts    STSAPI
	logger *logging.Logger
}

// AWSOption is a functional option for configuring an AWSStore.
type AWSOption func(*AWSStore)

// WithSecretsManagerClient sets a custom Secrets Manager client (for testing).
func WithSecretsManagerClient(client SecretsManagerAPI) AWSOption {
	return func(s *AWSStore) {
		s.client = client
	}
}

// WithSTSClient sets a custom STS client (for testing).
func WithSTSClient(client STSAPI) AWSOption {
	return func(s *AWSStore) {
		s.sts = client
	}
}

// WithAWSLogger sets the logger used for debug output.
func WithAWSLogger(logger *logging.Logger) AWSOption {
	return func(s *AWSStore) {
		s.logger = logger
	}
}

// NewAWSStore creates a store for the region held in cfg. endpoint
// overrides the service endpoint (LocalStack).
func NewAWSStore(cfg aws.Config, endpoint string, opts ...AWSOption) *AWSStore {
	s := &AWSStore{
		region: cfg.Region,
		logger: logging.Discard(),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.client == nil {
		var clientOpts []func(*secretsmanager.Options)
		if endpoint != "" {
			clientOpts = append(clientOpts, func(o *secretsmanager.Options) {
				o.BaseEndpoint = aws.String(endpoint)
			})
		}
		s.client = secretsmanager.NewFromConfig(cfg, clientOpts...)
	}
	if s.sts == nil {
		var stsOpts []func(*sts.Options)
		if endpoint != "" {
			stsOpts = append(stsOpts, func(o *sts.Options) {
				o.BaseEndpoint = aws.String(endpoint)
			})
		}
		s.sts = sts.NewFromConfig(cfg, stsOpts...)
	}

	return s
}

// Name returns the region this store serves.
func (s *AWSStore) Name() string {
	return s.region
}

// ListProperties lists every secret not scheduled for deletion.
func (s *AWSStore) ListProperties(ctx context.Context) ([]secretstore.Properties, error) {
	var out []secretstore.Properties

	paginator := secretsmanager.NewListSecretsPaginator(s.client, &secretsmanager.ListSecretsInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, s.classify("list", "", err)
		}
		for _, entry := range page.SecretList {
			if entry.Name == nil || entry.DeletedDate != nil {
				continue
			}
			p := secretstore.Properties{
				Name:        aws.ToString(entry.Name),
				Tags:        awsTags(entry.Tags),
				ContentType: aws.ToString(entry.Description),
				Enabled:     true,
			}
			if entry.CreatedDate != nil {
				p.Created = *entry.CreatedDate
			}
			if entry.LastChangedDate != nil {
				p.Updated = *entry.LastChangedDate
			}
			out = append(out, p)
		}
	}

	s.logger.Debug("Listed %d secrets in %s", len(out), s.region)
	return out, nil
}

// GetSecret fetches the AWSCURRENT value of name along with its metadata.
func (s *AWSStore) GetSecret(ctx context.Context, name string) (secretstore.Secret, error) {
	s.logger.Debug("Fetching %s from %s", logging.Secret(name), s.region)

	val, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: aws.String(name)})
	if err != nil {
		return secretstore.Secret{}, s.classify("get", name, err)
	}

	props, err := s.describe(ctx, name)
	if err != nil {
		return secretstore.Secret{}, err
	}
	props.Version = aws.ToString(val.VersionId)

	value := aws.ToString(val.SecretString)
	if val.SecretString == nil && val.SecretBinary != nil {
		value = string(val.SecretBinary)
	}

	return secretstore.Secret{Name: props.Name, Value: value, Properties: props}, nil
}

// SetSecret puts a new value on name, creating the secret when it does not
// exist yet.
func (s *AWSStore) SetSecret(ctx context.Context, name, value string) (secretstore.Secret, error) {
	var versionID string

	put, err := s.client.PutSecretValue(ctx, &secretsmanager.PutSecretValueInput{
		SecretId:     aws.String(name),
		SecretString: aws.String(value),
	})
	var notFound *types.ResourceNotFoundException
	switch {
	case err == nil:
		versionID = aws.ToString(put.VersionId)
	case errors.As(err, &notFound):
		created, cerr := s.client.CreateSecret(ctx, &secretsmanager.CreateSecretInput{
			Name:         aws.String(name),
			SecretString: aws.String(value),
		})
		if cerr != nil {
			return secretstore.Secret{}, s.classify("set", name, cerr)
		}
		versionID = aws.ToString(created.VersionId)
	default:
		return secretstore.Secret{}, s.classify("set", name, err)
	}

	props, err := s.describe(ctx, name)
	if err != nil {
		return secretstore.Secret{}, err
	}
	props.Version = versionID

	return secretstore.Secret{Name: name, Value: value, Properties: props}, nil
}

// UpdateProperties replaces the tag set of the secret and stores the
// content type as its description. Secrets Manager has no per-version
// properties and no enabled flag, so props.Version and props.Enabled are
// ignored.
func (s *AWSStore) UpdateProperties(ctx context.Context, props secretstore.Properties) (secretstore.Properties, error) {
	current, err := s.describe(ctx, props.Name)
	if err != nil {
		return secretstore.Properties{}, err
	}

	var stale []string
	for k := range current.Tags {
		if _, keep := props.Tags[k]; !keep {
			stale = append(stale, k)
		}
	}
	if len(stale) > 0 {
		if _, err := s.client.UntagResource(ctx, &secretsmanager.UntagResourceInput{
			SecretId: aws.String(props.Name),
			TagKeys:  stale,
		}); err != nil {
			return secretstore.Properties{}, s.classify("update", props.Name, err)
		}
	}

	if len(props.Tags) > 0 {
		tags := make([]types.Tag, 0, len(props.Tags))
		for _, t := range props.SortedTags() {
			tags = append(tags, types.Tag{Key: aws.String(t.Name), Value: aws.String(t.Value)})
		}
		if _, err := s.client.TagResource(ctx, &secretsmanager.TagResourceInput{
			SecretId: aws.String(props.Name),
			Tags:     tags,
		}); err != nil {
			return secretstore.Properties{}, s.classify("update", props.Name, err)
		}
	}

	if props.ContentType != current.ContentType {
		if _, err := s.client.UpdateSecret(ctx, &secretsmanager.UpdateSecretInput{
			SecretId:    aws.String(props.Name),
			Description: aws.String(props.ContentType),
		}); err != nil {
			return secretstore.Properties{}, s.classify("update", props.Name, err)
		}
	}

	updated, err := s.describe(ctx, props.Name)
	if err != nil {
		return secretstore.Properties{}, err
	}
	updated.Version = props.Version
	return updated, nil
}

// DeleteSecret schedules name for deletion with a recovery window.
func (s *AWSStore) DeleteSecret(ctx context.Context, name string) error {
	_, err := s.client.DeleteSecret(ctx, &secretsmanager.DeleteSecretInput{
		SecretId:             aws.String(name),
		RecoveryWindowInDays: aws.Int64(awsRecoveryWindowDays),
	})
	if err != nil {
		return s.classify("delete", name, err)
	}
	return nil
}

// Validate checks the caller identity and that secrets can be listed.
func (s *AWSStore) Validate(ctx context.Context) error {
	if _, err := s.sts.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{}); err != nil {
		return secretstore.AuthError{Store: s.region, Message: "AWS credentials are not usable", Err: err}
	}
	if _, err := s.client.ListSecrets(ctx, &secretsmanager.ListSecretsInput{MaxResults: aws.Int32(1)}); err != nil {
		return s.classify("validate", "", err)
	}
	return nil
}

func (s *AWSStore) describe(ctx context.Context, name string) (secretstore.Properties, error) {
	out, err := s.client.DescribeSecret(ctx, &secretsmanager.DescribeSecretInput{SecretId: aws.String(name)})
	if err != nil {
		return secretstore.Properties{}, s.classify("describe", name, err)
	}
	if out.DeletedDate != nil {
		return secretstore.Properties{}, secretstore.NotFoundError{Store: s.region, Name: name}
	}

	p := secretstore.Properties{
		Name:        aws.ToString(out.Name),
		Tags:        awsTags(out.Tags),
		ContentType: aws.ToString(out.Description),
		Enabled:     true,
	}
	if out.CreatedDate != nil {
		p.Created = *out.CreatedDate
	}
	if out.LastChangedDate != nil {
		p.Updated = *out.LastChangedDate
	}
	return p, nil
}

var awsAuthCodes = map[string]bool{
	"AccessDeniedException":       true,
	"AccessDenied":                true,
	"UnrecognizedClientException": true,
	"InvalidClientTokenId":        true,
	"ExpiredTokenException":       true,
	"InvalidSignatureException":   true,
}

func (s *AWSStore) classify(op, name string, err error) error {
	var notFound *types.ResourceNotFoundException
	if errors.As(err, &notFound) {
		return secretstore.NotFoundError{Store: s.region, Name: name, Err: err}
	}

	var exists *types.ResourceExistsException
	if errors.As(err, &exists) {
		return secretstore.ConflictError{Store: s.region, Name: name, Message: "secret already exists", Err: err}
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if awsAuthCodes[apiErr.ErrorCode()] {
			return secretstore.AuthError{Store: s.region, Message: apiErr.ErrorCode(), Err: err}
		}
		// Writing to a name scheduled for deletion.
		if apiErr.ErrorCode() == "InvalidRequestException" && strings.Contains(strings.ToLower(apiErr.ErrorMessage()), "deletion") {
			return secretstore.ConflictError{Store: s.region, Name: name, Message: "secret is scheduled for deletion", Err: err}
		}
	}

	return secretstore.RemoteError{Store: s.region, Op: op, Err: fmt.Errorf("secrets manager: %w", err)}
}

func awsTags(tags []types.Tag) map[string]string {
	out := make(map[string]string, len(tags))
	for _, t := range tags {
		if t.Key != nil {
			out[*t.Key] = aws.ToString(t.Value)
		}
	}
	return out
}
