package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/oracle/oci-go-sdk/v65/common"
	"github.com/oracle/oci-go-sdk/v65/common/auth"
	"github.com/oracle/oci-go-sdk/v65/core"
	"github.com/oracle/oci-go-sdk/v65/database"
	"github.com/oracle/oci-go-sdk/v65/identity"
	"github.com/oracle/oci-go-sdk/v65/loadbalancer"
	"github.com/oracle/oci-go-sdk/v65/objectstorage"
	"gopkg.in/ini.v1"
)

// Supported authentication methods
const (
	AuthMethodAPIKey            = "api_key"
	AuthMethodInstancePrincipal = "instance_principal"
)

const (
	defaultOCIConfigFile = "~/.oci/config"
	defaultOCIProfile    = "DEFAULT"
)

// requiredCredentialKeys are the profile keys an API key profile must define
var requiredCredentialKeys = []string{"user", "fingerprint", "key_file", "tenancy", "region"}

// Credentials is the credential material loaded once per run
type Credentials struct {
	Method      string
	Profile     string
	ConfigFile  string
	TenancyID   string
	UserID      string
	Fingerprint string
	KeyFile     string
	Region      string

	provider common.ConfigurationProvider
}

// ConfigurationProvider returns the SDK provider used to sign requests
func (c *Credentials) ConfigurationProvider() common.ConfigurationProvider {
	return c.provider
}

// CompartmentLister lists compartments (identity service)
type CompartmentLister interface {
	ListCompartments(ctx context.Context, request identity.ListCompartmentsRequest) (identity.ListCompartmentsResponse, error)
}

// InstanceLister lists compute instances (core service)
type InstanceLister interface {
	ListInstances(ctx context.Context, request core.ListInstancesRequest) (core.ListInstancesResponse, error)
}

// DbSystemLister lists database systems (database service)
type DbSystemLister interface {
	ListDbSystems(ctx context.Context, request database.ListDbSystemsRequest) (database.ListDbSystemsResponse, error)
}

// LoadBalancerLister lists load balancers (load balancer service)
type LoadBalancerLister interface {
	ListLoadBalancers(ctx context.Context, request loadbalancer.ListLoadBalancersRequest) (loadbalancer.ListLoadBalancersResponse, error)
}

// BucketLister resolves the namespace and lists buckets (object storage service)
type BucketLister interface {
	GetNamespace(ctx context.Context, request objectstorage.GetNamespaceRequest) (objectstorage.GetNamespaceResponse, error)
	ListBuckets(ctx context.Context, request objectstorage.ListBucketsRequest) (objectstorage.ListBucketsResponse, error)
}

// OCIClients holds the OCI service clients used by the enumerator and the collector
type OCIClients struct {
	Identity      CompartmentLister
	Compute       InstanceLister
	Database      DbSystemLister
	LoadBalancer  LoadBalancerLister
	ObjectStorage BucketLister
}

// LoadCredentials reads and validates the credential source described by cfg.
// Every check is local; no network call is made for the api_key method.
func LoadCredentials(cfg AuthConfig) (*Credentials, error) {
	switch cfg.Method {
	case "", AuthMethodAPIKey:
		return loadAPIKeyCredentials(cfg)
	case AuthMethodInstancePrincipal:
		return loadInstancePrincipalCredentials()
	default:
		return nil, &AuthenticationError{Source: cfg.Method, Reason: "unsupported authentication method"}
	}
}

func loadAPIKeyCredentials(cfg AuthConfig) (*Credentials, error) {
	configFile := cfg.ConfigFile
	if env := os.Getenv("OCI_CLI_CONFIG_FILE"); env != "" && configFile == "" {
		configFile = env
	}
	if configFile == "" {
		configFile = defaultOCIConfigFile
	}
	profile := cfg.Profile
	if env := os.Getenv("OCI_CLI_PROFILE"); env != "" && profile == "" {
		profile = env
	}
	if profile == "" {
		profile = defaultOCIProfile
	}

	path, err := expandHome(configFile)
	if err != nil {
		return nil, &AuthenticationError{Source: configFile, Reason: "cannot resolve path", Err: err}
	}

	logger.Debug("Loading OCI credentials from %s (profile %s)", path, profile)

	if _, err := os.Stat(path); err != nil {
		return nil, &AuthenticationError{Source: path, Reason: "credential file not found", Err: err}
	}

	file, err := ini.Load(path)
	if err != nil {
		return nil, &AuthenticationError{Source: path, Reason: "malformed credential file", Err: err}
	}

	section, err := file.GetSection(profile)
	if err != nil {
		return nil, &AuthenticationError{Source: path, Reason: fmt.Sprintf("profile %q not found", profile), Err: err}
	}
	defaults := file.Section(ini.DefaultSection)

	lookup := func(key string) string {
		if section.HasKey(key) {
			return strings.TrimSpace(section.Key(key).String())
		}
		return strings.TrimSpace(defaults.Key(key).String())
	}

	var missing []string
	values := make(map[string]string, len(requiredCredentialKeys))
	for _, key := range requiredCredentialKeys {
		v := lookup(key)
		if v == "" {
			missing = append(missing, key)
		}
		values[key] = v
	}
	if len(missing) > 0 {
		return nil, &AuthenticationError{
			Source: path,
			Reason: fmt.Sprintf("profile %q is missing required keys: %s", profile, strings.Join(missing, ", ")),
		}
	}

	keyFile, err := expandHome(values["key_file"])
	if err != nil {
		return nil, &AuthenticationError{Source: values["key_file"], Reason: "cannot resolve key path", Err: err}
	}
	pemData, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, &AuthenticationError{Source: keyFile, Reason: "cannot read private key", Err: err}
	}

	var passphrase *string
	if p := lookup("pass_phrase"); p != "" {
		passphrase = common.String(p)
	}
	if _, err := common.PrivateKeyFromBytes(pemData, passphrase); err != nil {
		return nil, &AuthenticationError{Source: keyFile, Reason: "cannot parse private key", Err: err}
	}

	provider := common.NewRawConfigurationProvider(
		values["tenancy"],
		values["user"],
		values["region"],
		values["fingerprint"],
		string(pemData),
		passphrase,
	)

	return &Credentials{
		Method:      AuthMethodAPIKey,
		Profile:     profile,
		ConfigFile:  path,
		TenancyID:   values["tenancy"],
		UserID:      values["user"],
		Fingerprint: values["fingerprint"],
		KeyFile:     keyFile,
		Region:      values["region"],
		provider:    provider,
	}, nil
}

func loadInstancePrincipalCredentials() (*Credentials, error) {
	provider, err := auth.InstancePrincipalConfigurationProvider()
	if err != nil {
		return nil, &AuthenticationError{Source: AuthMethodInstancePrincipal, Reason: "cannot create instance principal provider", Err: err}
	}

	tenancyID, err := provider.TenancyOCID()
	if err != nil {
		return nil, &AuthenticationError{Source: AuthMethodInstancePrincipal, Reason: "cannot resolve tenancy", Err: err}
	}
	region, err := provider.Region()
	if err != nil {
		return nil, &AuthenticationError{Source: AuthMethodInstancePrincipal, Reason: "cannot resolve region", Err: err}
	}

	return &Credentials{
		Method:    AuthMethodInstancePrincipal,
		TenancyID: tenancyID,
		Region:    region,
		provider:  provider,
	}, nil
}

// NewOCIClients initializes the OCI service clients from the loaded credentials
func NewOCIClients(ctx context.Context, creds *Credentials) (*OCIClients, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if creds == nil || creds.provider == nil {
		return nil, &AuthenticationError{Source: "credentials", Reason: "no configuration provider"}
	}
	provider := creds.provider

	identityClient, err := identity.NewIdentityClientWithConfigurationProvider(provider)
	if err != nil {
		return nil, fmt.Errorf("failed to create identity client: %w", err)
	}

	computeClient, err := core.NewComputeClientWithConfigurationProvider(provider)
	if err != nil {
		return nil, fmt.Errorf("failed to create compute client: %w", err)
	}

	dbClient, err := database.NewDatabaseClientWithConfigurationProvider(provider)
	if err != nil {
		return nil, fmt.Errorf("failed to create database client: %w", err)
	}

	lbClient, err := loadbalancer.NewLoadBalancerClientWithConfigurationProvider(provider)
	if err != nil {
		return nil, fmt.Errorf("failed to create load balancer client: %w", err)
	}

	osClient, err := objectstorage.NewObjectStorageClientWithConfigurationProvider(provider)
	if err != nil {
		return nil, fmt.Errorf("failed to create object storage client: %w", err)
	}

	logger.Verbose("Initialized OCI clients for region %s", creds.Region)

	return &OCIClients{
		Identity:      identityClient,
		Compute:       computeClient,
		Database:      dbClient,
		LoadBalancer:  lbClient,
		ObjectStorage: osClient,
	}, nil
}

// expandHome resolves a leading "~" to the user's home directory
func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
