package connector

import (
	"context"
	"strings"
	"testing"

	"github.com/partsync/backend/internal/domain/datasync"
	"github.com/partsync/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const exchangeDoc = `<?xml version="1.0" encoding="UTF-8"?>
<ACES version="4.2">
  <Header>
    <Company>Example Filters Inc</Company>
    <SenderName>Catalog Team</SenderName>
    <TransferDate>2024-05-01</TransferDate>
    <BrandAAIAID>BBGL</BrandAAIAID>
    <DocumentTitle>Filters</DocumentTitle>
    <EffectiveDate>2024-05-01</EffectiveDate>
    <SubmissionType>FULL</SubmissionType>
    <VcdbVersionDate>2024-04-26</VcdbVersionDate>
    <QdbVersionDate>2024-04-19</QdbVersionDate>
    <PcdbVersionDate>2024-04-26</PcdbVersionDate>
  </Header>
  <App action="A" id="1">
    <BaseVehicle id="5911"/>
    <Qual id="2567"><param value="4"/><text>with 4 doors</text></Qual>
    <Note>Oil change kit</Note>
    <Qty>1</Qty>
    <PartType id="5340"/>
    <Position id="1"/>
    <Part>PH3614</Part>
  </App>
  <App action="D" id="2">
    <BaseVehicle id="6012"/>
    <Qty>2</Qty>
    <PartType id="5340"/>
    <Part>PH8A</Part>
    <BrandAAIAID>FRAM</BrandAAIAID>
  </App>
  <Asset action="A" id="3"><AssetName>img1</AssetName></Asset>
  <Footer>
    <RecordCount>3</RecordCount>
  </Footer>
</ACES>
`

func exchangeSource(path string) *config.ReferenceSourceConfig {
	return &config.ReferenceSourceConfig{
		Name:     "aces",
		Format:   "exchange_xml",
		Location: path,
		Table:    "aces.App",
		PageSize: 100,
	}
}

func TestFileConnector_Exchange(t *testing.T) {
	ctx := context.Background()
	c := newFileConnector(t, exchangeSource(writeExport(t, "aces.xml", []byte(exchangeDoc))))
	require.NoError(t, c.Open(ctx))

	records, err := c.Query(ctx, Query{Table: "aces.App"})
	require.NoError(t, err)
	require.Len(t, records, 2)

	first := records[0]
	assert.Equal(t, ExchangeColumns, first.Columns)
	assert.Equal(t, "app 1", first.RowID)
	assert.Equal(t, "1", first.Values["app_id"])
	assert.Equal(t, "A", first.Values["action"])
	assert.Equal(t, "5911", first.Values["base_vehicle_id"])
	assert.Equal(t, "5340", first.Values["part_type_id"])
	assert.Equal(t, "1", first.Values["position_id"])
	assert.Equal(t, "PH3614", first.Values["part_number"])
	assert.Equal(t, "BBGL", first.Values["brand"])
	assert.Equal(t, "2567(4)", first.Values["qualifiers"])
	assert.Equal(t, "Oil change kit", first.Values["notes"])
	assert.Equal(t, "2024-04-26", first.Values["vcdb_version"])

	second := records[1]
	assert.Equal(t, "D", second.Values["action"])
	assert.Equal(t, "FRAM", second.Values["brand"])
	assert.Equal(t, "", second.Values["position_id"])
}

func TestFileConnector_ExchangeFailures(t *testing.T) {
	ctx := context.Background()

	open := func(t *testing.T, doc string, mutate func(*config.ReferenceSourceConfig)) error {
		cfg := exchangeSource(writeExport(t, "aces.xml", []byte(doc)))
		if mutate != nil {
			mutate(cfg)
		}
		return newFileConnector(t, cfg).Open(ctx)
	}

	t.Run("vocabulary older than required", func(t *testing.T) {
		err := open(t, exchangeDoc, func(cfg *config.ReferenceSourceConfig) {
			cfg.MinVersions = map[string]string{"vcdb": "2024-05-01"}
		})
		require.Error(t, err)
		assert.True(t, datasync.IsConfigurationError(err))
		assert.Contains(t, err.Error(), "older than required")
	})

	t.Run("vocabulary at the minimum passes", func(t *testing.T) {
		err := open(t, exchangeDoc, func(cfg *config.ReferenceSourceConfig) {
			cfg.MinVersions = map[string]string{"pcdb": "2024-04-26", "qdb": "2024-01-01"}
		})
		assert.NoError(t, err)
	})

	t.Run("footer count mismatch", func(t *testing.T) {
		doc := strings.Replace(exchangeDoc, "<RecordCount>3</RecordCount>", "<RecordCount>5</RecordCount>", 1)
		err := open(t, doc, nil)
		require.Error(t, err)
		assert.True(t, datasync.IsConfigurationError(err))
		assert.Contains(t, err.Error(), "declares 5 records but 3 were read")
	})

	t.Run("truncated transfer has no footer", func(t *testing.T) {
		doc := `<ACES version="4.2"><Header><VcdbVersionDate>2024-04-26</VcdbVersionDate></Header>` +
			`<App action="A" id="1"><BaseVehicle id="1"/><PartType id="2"/><Part>X</Part></App></ACES>`
		err := open(t, doc, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no footer")
	})

	t.Run("record before header", func(t *testing.T) {
		doc := `<ACES><App action="A" id="1"/><Header/><Footer><RecordCount>1</RecordCount></Footer></ACES>`
		err := open(t, doc, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "before header")
	})

	t.Run("malformed xml is not retried", func(t *testing.T) {
		err := open(t, `<ACES><Header>`, nil)
		require.Error(t, err)
		assert.False(t, IsRetryable(err))
	})
}
