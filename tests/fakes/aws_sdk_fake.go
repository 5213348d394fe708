package fakes

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
)

type awsSecret struct {
	name        string
	versions    []string
	versionIDs  []string
	tags        map[string]string
	description string
	created     time.Time
	changed     time.Time
	deleted     *time.Time
}

// FakeSecretsManagerClient is an in-memory Secrets Manager for one region.
type FakeSecretsManagerClient struct {
	mu sync.Mutex

	// PageSize bounds ListSecrets results when MaxResults is not set.
	PageSize int
	// Errors maps "Operation:name" (e.g. "PutSecretValue:db") to an error.
	Errors map[string]error
	// Calls counts invocations per operation.
	Calls map[string]int

	secrets map[string]*awsSecret
	seq     int
	now     time.Time
}

// NewFakeSecretsManagerClient creates an empty fake.
func NewFakeSecretsManagerClient() *FakeSecretsManagerClient {
	return &FakeSecretsManagerClient{
		Errors:  make(map[string]error),
		Calls:   make(map[string]int),
		secrets: make(map[string]*awsSecret),
		now:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// AddSecret seeds a secret with one version.
func (f *FakeSecretsManagerClient) AddSecret(name, value string, tags map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := &awsSecret{name: name, tags: copyTags(tags), created: f.tick()}
	f.secrets[name] = s
	f.putVersion(s, value)
}

// VersionCount returns the number of values written to name.
func (f *FakeSecretsManagerClient) VersionCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.secrets[name]; ok {
		return len(s.versions)
	}
	return 0
}

// Tags returns a copy of the tags on name.
func (f *FakeSecretsManagerClient) Tags(name string) map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.secrets[name]; ok {
		return copyTags(s.tags)
	}
	return nil
}

// IsScheduledForDeletion reports whether name has a deletion date.
func (f *FakeSecretsManagerClient) IsScheduledForDeletion(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.secrets[name]
	return ok && s.deleted != nil
}

func (f *FakeSecretsManagerClient) enter(op, name string) error {
	f.Calls[op]++
	return f.Errors[op+":"+name]
}

// ListSecrets pages through live secrets sorted by name.
func (f *FakeSecretsManagerClient) ListSecrets(ctx context.Context, params *secretsmanager.ListSecretsInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.ListSecretsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ListSecrets", ""); err != nil {
		return nil, err
	}

	var names []string
	for name, s := range f.secrets {
		if s.deleted == nil {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	start := 0
	if params.NextToken != nil {
		start, _ = strconv.Atoi(*params.NextToken)
	}
	size := f.PageSize
	if params.MaxResults != nil {
		size = int(*params.MaxResults)
	}
	if size <= 0 {
		size = len(names)
	}
	end := start + size
	if end > len(names) {
		end = len(names)
	}

	out := &secretsmanager.ListSecretsOutput{}
	for _, name := range names[start:end] {
		s := f.secrets[name]
		created, changed := s.created, s.changed
		out.SecretList = append(out.SecretList, types.SecretListEntry{
			Name:            aws.String(name),
			Description:     optionalString(s.description),
			Tags:            toAWSTags(s.tags),
			CreatedDate:     &created,
			LastChangedDate: &changed,
		})
	}
	if end < len(names) {
		out.NextToken = aws.String(strconv.Itoa(end))
	}
	return out, nil
}

// GetSecretValue returns the current value of a live secret.
func (f *FakeSecretsManagerClient) GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := aws.ToString(params.SecretId)
	if err := f.enter("GetSecretValue", name); err != nil {
		return nil, err
	}
	s, err := f.live(name)
	if err != nil {
		return nil, err
	}
	last := len(s.versions) - 1
	return &secretsmanager.GetSecretValueOutput{
		Name:          aws.String(name),
		SecretString:  aws.String(s.versions[last]),
		VersionId:     aws.String(s.versionIDs[last]),
		VersionStages: []string{"AWSCURRENT"},
	}, nil
}

// DescribeSecret returns metadata, including secrets pending deletion.
func (f *FakeSecretsManagerClient) DescribeSecret(ctx context.Context, params *secretsmanager.DescribeSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.DescribeSecretOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := aws.ToString(params.SecretId)
	if err := f.enter("DescribeSecret", name); err != nil {
		return nil, err
	}
	s, ok := f.secrets[name]
	if !ok {
		return nil, awsNotFound(name)
	}
	created, changed := s.created, s.changed
	return &secretsmanager.DescribeSecretOutput{
		Name:            aws.String(name),
		Description:     optionalString(s.description),
		Tags:            toAWSTags(s.tags),
		CreatedDate:     &created,
		LastChangedDate: &changed,
		DeletedDate:     s.deleted,
	}, nil
}

// CreateSecret creates a new secret.
func (f *FakeSecretsManagerClient) CreateSecret(ctx context.Context, params *secretsmanager.CreateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.CreateSecretOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := aws.ToString(params.Name)
	if err := f.enter("CreateSecret", name); err != nil {
		return nil, err
	}
	if s, ok := f.secrets[name]; ok {
		if s.deleted != nil {
			return nil, AWSScheduledForDeletionError(name)
		}
		return nil, &types.ResourceExistsException{Message: aws.String("secret " + name + " already exists")}
	}
	s := &awsSecret{name: name, tags: map[string]string{}, created: f.tick()}
	f.secrets[name] = s
	id := f.putVersion(s, aws.ToString(params.SecretString))
	return &secretsmanager.CreateSecretOutput{Name: aws.String(name), VersionId: aws.String(id)}, nil
}

// PutSecretValue adds a version to an existing secret.
func (f *FakeSecretsManagerClient) PutSecretValue(ctx context.Context, params *secretsmanager.PutSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := aws.ToString(params.SecretId)
	if err := f.enter("PutSecretValue", name); err != nil {
		return nil, err
	}
	s, ok := f.secrets[name]
	if !ok {
		return nil, awsNotFound(name)
	}
	if s.deleted != nil {
		return nil, AWSScheduledForDeletionError(name)
	}
	id := f.putVersion(s, aws.ToString(params.SecretString))
	return &secretsmanager.PutSecretValueOutput{Name: aws.String(name), VersionId: aws.String(id)}, nil
}

// UpdateSecret changes the description.
func (f *FakeSecretsManagerClient) UpdateSecret(ctx context.Context, params *secretsmanager.UpdateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.UpdateSecretOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := aws.ToString(params.SecretId)
	if err := f.enter("UpdateSecret", name); err != nil {
		return nil, err
	}
	s, err := f.live(name)
	if err != nil {
		return nil, err
	}
	if params.Description != nil {
		s.description = *params.Description
	}
	s.changed = f.tick()
	return &secretsmanager.UpdateSecretOutput{Name: aws.String(name)}, nil
}

// TagResource adds or overwrites tags.
func (f *FakeSecretsManagerClient) TagResource(ctx context.Context, params *secretsmanager.TagResourceInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.TagResourceOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := aws.ToString(params.SecretId)
	if err := f.enter("TagResource", name); err != nil {
		return nil, err
	}
	s, err := f.live(name)
	if err != nil {
		return nil, err
	}
	for _, t := range params.Tags {
		s.tags[aws.ToString(t.Key)] = aws.ToString(t.Value)
	}
	return &secretsmanager.TagResourceOutput{}, nil
}

// UntagResource removes tags by key.
func (f *FakeSecretsManagerClient) UntagResource(ctx context.Context, params *secretsmanager.UntagResourceInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.UntagResourceOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := aws.ToString(params.SecretId)
	if err := f.enter("UntagResource", name); err != nil {
		return nil, err
	}
	s, err := f.live(name)
	if err != nil {
		return nil, err
	}
	for _, k := range params.TagKeys {
		delete(s.tags, k)
	}
	return &secretsmanager.UntagResourceOutput{}, nil
}

// DeleteSecret schedules a secret for deletion.
func (f *FakeSecretsManagerClient) DeleteSecret(ctx context.Context, params *secretsmanager.DeleteSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.DeleteSecretOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := aws.ToString(params.SecretId)
	if err := f.enter("DeleteSecret", name); err != nil {
		return nil, err
	}
	s, err := f.live(name)
	if err != nil {
		return nil, err
	}
	when := f.tick()
	s.deleted = &when
	return &secretsmanager.DeleteSecretOutput{Name: aws.String(name), DeletionDate: &when}, nil
}

func (f *FakeSecretsManagerClient) live(name string) (*awsSecret, error) {
	s, ok := f.secrets[name]
	if !ok {
		return nil, awsNotFound(name)
	}
	if s.deleted != nil {
		return nil, AWSScheduledForDeletionError(name)
	}
	return s, nil
}

func (f *FakeSecretsManagerClient) putVersion(s *awsSecret, value string) string {
	f.seq++
	id := fmt.Sprintf("00000000-0000-0000-0000-%012d", f.seq)
	s.versions = append(s.versions, value)
	s.versionIDs = append(s.versionIDs, id)
	s.changed = f.tick()
	return id
}

func (f *FakeSecretsManagerClient) tick() time.Time {
	f.now = f.now.Add(time.Second)
	return f.now
}

func toAWSTags(tags map[string]string) []types.Tag {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]types.Tag, 0, len(keys))
	for _, k := range keys {
		out = append(out, types.Tag{Key: aws.String(k), Value: aws.String(tags[k])})
	}
	return out
}

func awsNotFound(name string) error {
	return &types.ResourceNotFoundException{Message: aws.String("Secrets Manager can't find the specified secret: " + name)}
}

// AWSScheduledForDeletionError is returned for writes to a secret pending
// deletion.
func AWSScheduledForDeletionError(name string) error {
	return &types.InvalidRequestException{Message: aws.String("You can't perform this operation on the secret because it was marked for deletion.")}
}

// AWSAccessDeniedError creates an access denied API error.
func AWSAccessDeniedError() error {
	return &smithy.GenericAPIError{Code: "AccessDeniedException", Message: "User is not authorized to perform this operation"}
}

// FakeSTSClient answers GetCallerIdentity.
type FakeSTSClient struct {
	Account string
	Err     error
}

// GetCallerIdentity returns the configured account or error.
func (f *FakeSTSClient) GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return &sts.GetCallerIdentityOutput{
		Account: aws.String(f.Account),
		Arn:     aws.String("arn:aws:iam::" + f.Account + ":user/knox"),
	}, nil
}
