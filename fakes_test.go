package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/oracle/oci-go-sdk/v65/common"
	"github.com/oracle/oci-go-sdk/v65/core"
	"github.com/oracle/oci-go-sdk/v65/database"
	"github.com/oracle/oci-go-sdk/v65/identity"
	"github.com/oracle/oci-go-sdk/v65/loadbalancer"
	"github.com/oracle/oci-go-sdk/v65/objectstorage"
)

// fakeServiceError mimics an OCI service error response
type fakeServiceError struct {
	status int
	code   string
	msg    string
}

func (e *fakeServiceError) Error() string {
	return fmt.Sprintf("Error returned by service. Http Status Code: %d. Error Code: %s. Message: %s", e.status, e.code, e.msg)
}
func (e *fakeServiceError) GetHTTPStatusCode() int  { return e.status }
func (e *fakeServiceError) GetMessage() string      { return e.msg }
func (e *fakeServiceError) GetCode() string         { return e.code }
func (e *fakeServiceError) GetOpcRequestID() string { return "fake-request-id" }

var _ common.ServiceError = (*fakeServiceError)(nil)

func errForbidden() error {
	return &fakeServiceError{status: 403, code: "NotAuthorizedOrNotFound", msg: "Authorization failed or requested resource not found"}
}

func errUnavailable() error {
	return &fakeServiceError{status: 503, code: "ServiceUnavailable", msg: "service unavailable"}
}

// paginate serves items in pages of pageSize using offset tokens
func paginate[T any](items []T, page *string, pageSize int) ([]T, *string) {
	start := 0
	if page != nil {
		start, _ = strconv.Atoi(*page)
	}
	if start > len(items) {
		start = len(items)
	}
	if pageSize <= 0 {
		return items[start:], nil
	}
	end := start + pageSize
	if end >= len(items) {
		return items[start:], nil
	}
	return items[start:end], common.String(strconv.Itoa(end))
}

// failures pops the next scripted error, falling back to the persistent one
type failures struct {
	errs []error
	err  error
}

func (f *failures) next() error {
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return err
	}
	return f.err
}

type fakeIdentity struct {
	items      []identity.Compartment
	pageSize   int
	failAtPage int // 1-based page that fails with err; 0 = never
	err        error
	requests   []identity.ListCompartmentsRequest
}

func (f *fakeIdentity) ListCompartments(ctx context.Context, req identity.ListCompartmentsRequest) (identity.ListCompartmentsResponse, error) {
	f.requests = append(f.requests, req)
	if f.err != nil && len(f.requests) == f.failAtPage {
		return identity.ListCompartmentsResponse{}, f.err
	}
	items, next := paginate(f.items, req.Page, f.pageSize)
	return identity.ListCompartmentsResponse{Items: items, OpcNextPage: next}, nil
}

type fakeCompute struct {
	failures
	items    map[string][]core.Instance
	pageSize int
	calls    int
}

func (f *fakeCompute) ListInstances(ctx context.Context, req core.ListInstancesRequest) (core.ListInstancesResponse, error) {
	f.calls++
	if err := f.next(); err != nil {
		return core.ListInstancesResponse{}, err
	}
	items, next := paginate(f.items[*req.CompartmentId], req.Page, f.pageSize)
	return core.ListInstancesResponse{Items: items, OpcNextPage: next}, nil
}

type fakeDatabase struct {
	failures
	items map[string][]database.DbSystemSummary
	calls int
}

func (f *fakeDatabase) ListDbSystems(ctx context.Context, req database.ListDbSystemsRequest) (database.ListDbSystemsResponse, error) {
	f.calls++
	if err := f.next(); err != nil {
		return database.ListDbSystemsResponse{}, err
	}
	items, next := paginate(f.items[*req.CompartmentId], req.Page, 0)
	return database.ListDbSystemsResponse{Items: items, OpcNextPage: next}, nil
}

type fakeLoadBalancer struct {
	failures
	items map[string][]loadbalancer.LoadBalancer
	calls int
}

func (f *fakeLoadBalancer) ListLoadBalancers(ctx context.Context, req loadbalancer.ListLoadBalancersRequest) (loadbalancer.ListLoadBalancersResponse, error) {
	f.calls++
	if err := f.next(); err != nil {
		return loadbalancer.ListLoadBalancersResponse{}, err
	}
	items, next := paginate(f.items[*req.CompartmentId], req.Page, 0)
	return loadbalancer.ListLoadBalancersResponse{Items: items, OpcNextPage: next}, nil
}

type fakeObjectStorage struct {
	failures
	namespace      string
	items          map[string][]objectstorage.BucketSummary
	pageSize       int
	namespaceCalls int
	calls          int
}

func (f *fakeObjectStorage) GetNamespace(ctx context.Context, req objectstorage.GetNamespaceRequest) (objectstorage.GetNamespaceResponse, error) {
	f.namespaceCalls++
	return objectstorage.GetNamespaceResponse{Value: common.String(f.namespace)}, nil
}

func (f *fakeObjectStorage) ListBuckets(ctx context.Context, req objectstorage.ListBucketsRequest) (objectstorage.ListBucketsResponse, error) {
	f.calls++
	if err := f.next(); err != nil {
		return objectstorage.ListBucketsResponse{}, err
	}
	items, next := paginate(f.items[*req.CompartmentId], req.Page, f.pageSize)
	return objectstorage.ListBucketsResponse{Items: items, OpcNextPage: next}, nil
}

// fakeTenancy bundles one fake per service
type fakeTenancy struct {
	identity      *fakeIdentity
	compute       *fakeCompute
	database      *fakeDatabase
	loadBalancer  *fakeLoadBalancer
	objectStorage *fakeObjectStorage
}

func newFakeTenancy() *fakeTenancy {
	return &fakeTenancy{
		identity:      &fakeIdentity{},
		compute:       &fakeCompute{items: map[string][]core.Instance{}},
		database:      &fakeDatabase{items: map[string][]database.DbSystemSummary{}},
		loadBalancer:  &fakeLoadBalancer{items: map[string][]loadbalancer.LoadBalancer{}},
		objectStorage: &fakeObjectStorage{namespace: "testns", items: map[string][]objectstorage.BucketSummary{}},
	}
}

func (f *fakeTenancy) clients() *OCIClients {
	return &OCIClients{
		Identity:      f.identity,
		Compute:       f.compute,
		Database:      f.database,
		LoadBalancer:  f.loadBalancer,
		ObjectStorage: f.objectStorage,
	}
}

func sdkCompartment(id, name, parent string) identity.Compartment {
	return identity.Compartment{
		Id:             common.String(id),
		Name:           common.String(name),
		CompartmentId:  common.String(parent),
		LifecycleState: identity.CompartmentLifecycleStateActive,
	}
}

func sdkInstance(id, name string, state core.InstanceLifecycleStateEnum) core.Instance {
	return core.Instance{
		Id:                 common.String(id),
		DisplayName:        common.String(name),
		Shape:              common.String("VM.Standard.E4.Flex"),
		AvailabilityDomain: common.String("AD-1"),
		LifecycleState:     state,
	}
}

func sdkDbSystem(id, name string, state database.DbSystemSummaryLifecycleStateEnum) database.DbSystemSummary {
	return database.DbSystemSummary{
		Id:              common.String(id),
		DisplayName:     common.String(name),
		Shape:           common.String("VM.Standard2.1"),
		DatabaseEdition: database.DbSystemSummaryDatabaseEditionEnum("ENTERPRISE_EDITION"),
		LifecycleState:  state,
	}
}

func sdkLoadBalancer(id, name string, state loadbalancer.LoadBalancerLifecycleStateEnum, ips ...string) loadbalancer.LoadBalancer {
	lb := loadbalancer.LoadBalancer{
		Id:             common.String(id),
		DisplayName:    common.String(name),
		ShapeName:      common.String("flexible"),
		LifecycleState: state,
	}
	for _, ip := range ips {
		lb.IpAddresses = append(lb.IpAddresses, loadbalancer.IpAddress{IpAddress: common.String(ip)})
	}
	return lb
}

func sdkBucket(name string) objectstorage.BucketSummary {
	return objectstorage.BucketSummary{Name: common.String(name)}
}
