package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/juju/clock"
	"github.com/juju/retry"
	"github.com/oracle/oci-go-sdk/v65/common"
	"github.com/oracle/oci-go-sdk/v65/core"
	"github.com/oracle/oci-go-sdk/v65/database"
	"github.com/oracle/oci-go-sdk/v65/loadbalancer"
	"github.com/oracle/oci-go-sdk/v65/objectstorage"
	"github.com/sony/gobreaker"
	"go.uber.org/multierr"
)

// CollectorOptions tunes the resource collector
type CollectorOptions struct {
	// Strict aborts the compartment on the first failed category.
	Strict           bool
	MaxRetries       int
	RetryBaseDelay   time.Duration
	BreakerThreshold uint32
	BreakerTimeout   time.Duration
	Filters          FilterConfig
}

// DefaultCollectorOptions returns the options used when nothing is configured
func DefaultCollectorOptions() CollectorOptions {
	return CollectorOptions{
		MaxRetries:       3,
		RetryBaseDelay:   time.Second,
		BreakerThreshold: 3,
		BreakerTimeout:   60 * time.Second,
	}
}

type discoverFunc func(ctx context.Context, compartmentID string) ([]Resource, error)

// categoryListing binds a category to the listing operation that fills it
type categoryListing struct {
	category  Category
	operation string
	discover  discoverFunc
}

// Collector gathers the four resource categories of a compartment into a Bundle
type Collector struct {
	clients    *OCIClients
	opts       CollectorOptions
	nameFilter *CompiledFilters
	listings   []categoryListing
	breakers   map[Category]*gobreaker.CircuitBreaker

	// namespace is tenancy-wide, so it is resolved once per run
	namespace string
}

// NewCollector creates a collector over the given clients
func NewCollector(clients *OCIClients, opts CollectorOptions) (*Collector, error) {
	compiled, err := CompileFilters(opts.Filters)
	if err != nil {
		return nil, fmt.Errorf("failed to compile filter patterns: %w", err)
	}

	c := &Collector{
		clients:    clients,
		opts:       opts,
		nameFilter: compiled,
		breakers:   make(map[Category]*gobreaker.CircuitBreaker, len(Categories)),
	}
	c.listings = []categoryListing{
		{CategoryCompute, "ListInstances", c.discoverComputeInstances},
		{CategoryDatabases, "ListDbSystems", c.discoverDbSystems},
		{CategoryNetworking, "ListLoadBalancers", c.discoverLoadBalancers},
		{CategoryObjectStorage, "ListBuckets", c.discoverBuckets},
	}

	threshold := opts.BreakerThreshold
	for _, category := range Categories {
		c.breakers[category] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    string(category),
			Timeout: opts.BreakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return threshold > 0 && counts.ConsecutiveFailures >= threshold
			},
			// Only service-side trouble counts against the breaker; a denied
			// compartment says nothing about the health of the service.
			IsSuccessful: func(err error) bool {
				return err == nil || !isTransientError(err)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("Circuit breaker for %s: %s -> %s", name, from, to)
			},
		})
	}

	return c, nil
}

// Collect lists all four categories of a compartment.
//
// A nil error means the Bundle is complete. When some categories fail and
// Strict is off, the partial Bundle is returned together with the combined
// RemoteListErrors; the failed categories are recorded in Bundle.Failed.
func (c *Collector) Collect(ctx context.Context, compartment Compartment) (*Bundle, error) {
	bundle := NewBundle(compartment)
	var errs error

	for _, listing := range c.listings {
		if !ApplyCategoryFilter(listing.category, c.opts.Filters) {
			logger.Debug("Skipping category %s due to filters", listing.category)
			continue
		}

		resources, err := c.run(ctx, listing, compartment.ID)
		if err != nil {
			listErr := &RemoteListError{
				Operation:     listing.operation,
				Category:      listing.category,
				CompartmentID: compartment.ID,
				Err:           err,
			}
			if c.opts.Strict {
				return nil, listErr
			}
			if isRetriableError(err) {
				logger.Verbose("Category %s unavailable in compartment %s: %v", listing.category, compartment.Name, err)
			} else {
				logger.Warn("Failed to list %s in compartment %s: %v", listing.category, compartment.Name, err)
			}
			bundle.MarkFailed(listing.category, listErr)
			errs = multierr.Append(errs, listErr)
			continue
		}

		kept := 0
		for _, resource := range resources {
			if !ApplyNameFilter(resource.DisplayName, c.nameFilter) {
				logger.Debug("Filtering out resource %s due to name filters", resource.DisplayName)
				continue
			}
			if err := bundle.Add(resource); err != nil {
				return nil, err
			}
			kept++
		}
		logger.Verbose("Found %d %s resources in compartment %s", kept, listing.category, compartment.Name)
	}

	return bundle, errs
}

// run executes one listing through its circuit breaker with retries
func (c *Collector) run(ctx context.Context, listing categoryListing, compartmentID string) ([]Resource, error) {
	var resources []Resource
	operation := func() error {
		var err error
		resources, err = listing.discover(ctx, compartmentID)
		return err
	}

	_, err := c.breakers[listing.category].Execute(func() (interface{}, error) {
		return nil, withRetry(ctx, operation, c.opts.MaxRetries, fmt.Sprintf("%s in %s", listing.operation, compartmentID), c.opts.RetryBaseDelay)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%s skipped, service is failing: %w", listing.operation, err)
	}
	if err != nil {
		return nil, err
	}
	return resources, nil
}

// withRetry executes an operation, retrying transient failures with jittered exponential backoff
func withRetry(ctx context.Context, operation func() error, maxRetries int, operationName string, baseDelay time.Duration) error {
	if baseDelay <= 0 {
		baseDelay = time.Millisecond
	}

	var lastErr error
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			lastErr = operation()
			return lastErr
		},
		IsFatalError: func(err error) bool {
			return !isTransientError(err)
		},
		NotifyFunc: func(err error, attempt int) {
			if attempt <= maxRetries {
				logger.Verbose("Retrying %s (attempt %d/%d): %v", operationName, attempt, maxRetries+1, err)
			}
		},
		Attempts: maxRetries + 1,
		Delay:    baseDelay,

		// capped at 30 base delays
		BackoffFunc: retry.ExpBackoff(baseDelay, 30*baseDelay, 2, true),
		Stop:        ctx.Done(),
		Clock:       clock.WallClock,
	})
	if err == nil {
		return nil
	}
	if retry.IsAttemptsExceeded(err) {
		return fmt.Errorf("operation '%s' failed after %d attempts: %w", operationName, maxRetries+1, lastErr)
	}
	if ctxErr := ctx.Err(); ctxErr != nil && isTransientError(lastErr) {
		return ctxErr
	}
	return lastErr
}

// discoverComputeInstances lists the non-terminated compute instances of a compartment
func (c *Collector) discoverComputeInstances(ctx context.Context, compartmentID string) ([]Resource, error) {
	var resources []Resource

	var page *string
	pageCount := 0
	for {
		pageCount++
		logger.Debug("Fetching compute instances page %d for compartment: %s", pageCount, compartmentID)
		resp, err := c.clients.Compute.ListInstances(ctx, core.ListInstancesRequest{
			CompartmentId: common.String(compartmentID),
			Page:          page,
		})
		if err != nil {
			return nil, err
		}

		for _, instance := range resp.Items {
			if instance.LifecycleState == core.InstanceLifecycleStateTerminated {
				continue
			}
			details := map[string]interface{}{
				"lifecycle_state": string(instance.LifecycleState),
			}
			if instance.Shape != nil {
				details["shape"] = *instance.Shape
			}
			if instance.AvailabilityDomain != nil {
				details["availability_domain"] = *instance.AvailabilityDomain
			}
			resources = append(resources, Resource{
				Kind:          KindComputeInstance,
				ID:            deref(instance.Id),
				DisplayName:   deref(instance.DisplayName),
				CompartmentID: compartmentID,
				Details:       details,
			})
		}

		if resp.OpcNextPage == nil {
			break
		}
		page = resp.OpcNextPage
	}

	return resources, nil
}

// discoverDbSystems lists the non-terminated database systems of a compartment
func (c *Collector) discoverDbSystems(ctx context.Context, compartmentID string) ([]Resource, error) {
	var resources []Resource

	var page *string
	pageCount := 0
	for {
		pageCount++
		logger.Debug("Fetching database systems page %d for compartment: %s", pageCount, compartmentID)
		resp, err := c.clients.Database.ListDbSystems(ctx, database.ListDbSystemsRequest{
			CompartmentId: common.String(compartmentID),
			Page:          page,
		})
		if err != nil {
			return nil, err
		}

		for _, dbSystem := range resp.Items {
			if dbSystem.LifecycleState == database.DbSystemSummaryLifecycleStateTerminated {
				continue
			}
			details := map[string]interface{}{
				"lifecycle_state":  string(dbSystem.LifecycleState),
				"database_edition": string(dbSystem.DatabaseEdition),
			}
			if dbSystem.Shape != nil {
				details["shape"] = *dbSystem.Shape
			}
			resources = append(resources, Resource{
				Kind:          KindDatabaseSystem,
				ID:            deref(dbSystem.Id),
				DisplayName:   deref(dbSystem.DisplayName),
				CompartmentID: compartmentID,
				Details:       details,
			})
		}

		if resp.OpcNextPage == nil {
			break
		}
		page = resp.OpcNextPage
	}

	return resources, nil
}

// discoverLoadBalancers lists the load balancers of a compartment that are not deleted
func (c *Collector) discoverLoadBalancers(ctx context.Context, compartmentID string) ([]Resource, error) {
	var resources []Resource

	var page *string
	pageCount := 0
	for {
		pageCount++
		logger.Debug("Fetching load balancers page %d for compartment: %s", pageCount, compartmentID)
		resp, err := c.clients.LoadBalancer.ListLoadBalancers(ctx, loadbalancer.ListLoadBalancersRequest{
			CompartmentId: common.String(compartmentID),
			Page:          page,
		})
		if err != nil {
			return nil, err
		}

		for _, lb := range resp.Items {
			if lb.LifecycleState == loadbalancer.LoadBalancerLifecycleStateDeleted {
				continue
			}
			details := map[string]interface{}{
				"lifecycle_state": string(lb.LifecycleState),
			}
			if lb.ShapeName != nil {
				details["shape"] = *lb.ShapeName
			}
			var ipAddresses []string
			for _, ip := range lb.IpAddresses {
				if ip.IpAddress != nil {
					ipAddresses = append(ipAddresses, *ip.IpAddress)
				}
			}
			if len(ipAddresses) > 0 {
				details["ip_addresses"] = ipAddresses
			}
			resources = append(resources, Resource{
				Kind:          KindLoadBalancer,
				ID:            deref(lb.Id),
				DisplayName:   deref(lb.DisplayName),
				CompartmentID: compartmentID,
				Details:       details,
			})
		}

		if resp.OpcNextPage == nil {
			break
		}
		page = resp.OpcNextPage
	}

	return resources, nil
}

// discoverBuckets lists the object storage buckets of a compartment.
// Buckets have no OCID; "bucket:<namespace>:<name>" identifies them.
func (c *Collector) discoverBuckets(ctx context.Context, compartmentID string) ([]Resource, error) {
	namespace, err := c.objectStorageNamespace(ctx)
	if err != nil {
		return nil, err
	}

	var resources []Resource
	var page *string
	pageCount := 0
	for {
		pageCount++
		logger.Debug("Fetching buckets page %d for compartment: %s", pageCount, compartmentID)
		resp, err := c.clients.ObjectStorage.ListBuckets(ctx, objectstorage.ListBucketsRequest{
			NamespaceName: common.String(namespace),
			CompartmentId: common.String(compartmentID),
			Page:          page,
		})
		if err != nil {
			return nil, err
		}

		for _, bucket := range resp.Items {
			name := deref(bucket.Name)
			resources = append(resources, Resource{
				Kind:          KindBucket,
				ID:            fmt.Sprintf("bucket:%s:%s", namespace, name),
				DisplayName:   name,
				CompartmentID: compartmentID,
				Details:       map[string]interface{}{"namespace": namespace},
			})
		}

		if resp.OpcNextPage == nil {
			break
		}
		page = resp.OpcNextPage
	}

	return resources, nil
}

func (c *Collector) objectStorageNamespace(ctx context.Context) (string, error) {
	if c.namespace != "" {
		return c.namespace, nil
	}

	resp, err := c.clients.ObjectStorage.GetNamespace(ctx, objectstorage.GetNamespaceRequest{})
	if err != nil {
		return "", fmt.Errorf("failed to resolve object storage namespace: %w", err)
	}
	if resp.Value == nil || *resp.Value == "" {
		return "", errors.New("object storage namespace is empty")
	}

	c.namespace = *resp.Value
	logger.Debug("Object storage namespace: %s", c.namespace)
	return c.namespace, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
