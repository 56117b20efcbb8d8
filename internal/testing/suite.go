package testing

import (
	"fmt"

	"github.com/stretchr/testify/suite"
)

// ClusterTestSuite starts fake nodes for a test suite. Handlers are registered through Cluster.
type ClusterTestSuite struct {
	suite.Suite
	cluster *FakeCluster
	nodes   []*FakeNode
}

func (suite *ClusterTestSuite) Cluster() *FakeCluster {
	if suite.cluster == nil {
		suite.cluster = NewFakeCluster()
	}
	return suite.cluster
}

func (suite *ClusterTestSuite) StartNode(opts ...NodeOption) (*FakeNode, error) {
	node, err := suite.Cluster().StartNode(opts...)
	if err != nil {
		return nil, err
	}
	suite.nodes = append(suite.nodes, node)
	return node, nil
}

func (suite *ClusterTestSuite) NodesCount() int {
	return len(suite.nodes)
}

func (suite *ClusterTestSuite) GetNode(idx int) *FakeNode {
	if idx >= len(suite.nodes) {
		return nil
	}
	return suite.nodes[idx]
}

// Addresses returns the addresses of the running nodes.
func (suite *ClusterTestSuite) Addresses() []string {
	ret := make([]string, 0, len(suite.nodes))
	for _, node := range suite.nodes {
		ret = append(ret, node.Address())
	}
	return ret
}

func (suite *ClusterTestSuite) KillNode(idx int) error {
	if idx >= len(suite.nodes) {
		return fmt.Errorf("index %d exceeds size of started nodes %d", idx, len(suite.nodes))
	}
	node := suite.nodes[idx]
	suite.nodes = append(suite.nodes[:idx], suite.nodes[idx+1:]...)
	return node.Kill()
}

// KillAllNodes kills every node and forgets the cluster with its handlers.
func (suite *ClusterTestSuite) KillAllNodes() {
	for _, node := range suite.nodes {
		_ = node.Kill()
	}
	suite.nodes = nil
	suite.cluster = nil
}
