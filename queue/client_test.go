package queue_test

import (
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabeth/sqstreams/config"
	"github.com/tabeth/sqstreams/queue"
)

func TestNewClient_MissingService(t *testing.T) {
	_, err := queue.NewClient(config.Connection{AccessKey: "a", SecretKey: "b"})
	assert.ErrorIs(t, err, queue.ErrInvalidArgument)
}

func TestNewClient_LocalEndpoint(t *testing.T) {
	c, err := queue.NewClient(config.ParseConnectionString("Service=http://localhost:9324"))
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:9324", c.Endpoint)
	assert.Equal(t, "us-east-1", aws.StringValue(c.Config.Region))

	creds, err := c.Config.Credentials.Get()
	require.NoError(t, err)
	assert.Equal(t, "dummy", creds.AccessKeyID)
}

func TestNewClient_StaticCredentials(t *testing.T) {
	c, err := queue.NewClient(config.ParseConnectionString("Service=eu-west-1;AccessKey=AKIA;SecretKey=secret"))
	require.NoError(t, err)

	assert.Equal(t, "eu-west-1", aws.StringValue(c.Config.Region))
	creds, err := c.Config.Credentials.Get()
	require.NoError(t, err)
	assert.Equal(t, "AKIA", creds.AccessKeyID)
	assert.Equal(t, "secret", creds.SecretAccessKey)
}

func TestNewClient_RegionOnly(t *testing.T) {
	c, err := queue.NewClient(config.Connection{Service: "ap-southeast-2"})
	require.NoError(t, err)
	assert.Equal(t, "ap-southeast-2", aws.StringValue(c.Config.Region))
	assert.Contains(t, c.Endpoint, "ap-southeast-2")
}
