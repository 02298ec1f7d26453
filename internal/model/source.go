package model

import "github.com/google/uuid"

// SourceID identifies a data origin: an ingester instance, an archive,
// or a user-submitted dump.
type SourceID = uuid.UUID

// Well-known archive sources.
var (
	SourceIlianaS3                   = uuid.MustParse("e007e189-0f89-4965-bc6a-3d8d4f1cb8fb")
	SourceReblaseServer              = uuid.MustParse("7f212933-4414-4825-bc75-340d8d3ba2de")
	SourceReblaseAstridLocal         = uuid.MustParse("4cd154b6-edec-48e8-b429-bd3a1e212d47")
	SourceImmaterialServer           = uuid.MustParse("b7a2f88f-1945-427b-b435-082af9c4d48e")
	SourceImmaterialAstridLocal      = uuid.MustParse("3735c017-b670-4411-8a09-624a76e9ead5")
	SourceBlaseballAPIOldGames       = uuid.MustParse("a4715d03-d092-4ef4-a3cc-4a19776a6fd5")
	SourceBlaseballAPIOldPlayers     = uuid.MustParse("c57920eb-dcca-438b-bdc6-b0ca3deb0368")
	SourceSiteUpdatesIlianaStash     = uuid.MustParse("7efe8c9a-9f21-40b9-af9f-5f8a7efc8c96")
	SourceSiteUpdatesInternetArchive = uuid.MustParse("62b33934-5ff2-4c6f-91a4-1222e2f18025")
	SourceSiteUpdatesRiskyDrive      = uuid.MustParse("04c6319c-2345-419d-8ccf-72f27d45da09")
	SourceSiteUpdatesUserProvided    = uuid.MustParse("17a696d3-beb3-4bd5-b918-e9018aca6d83")
)

// KnownSources maps short names to well-known source ids for CLI lookup.
var KnownSources = map[string]SourceID{
	"iliana-s3":               SourceIlianaS3,
	"reblase-server":          SourceReblaseServer,
	"reblase-astrid-local":    SourceReblaseAstridLocal,
	"immaterial-server":       SourceImmaterialServer,
	"immaterial-astrid-local": SourceImmaterialAstridLocal,
	"api-old-games":           SourceBlaseballAPIOldGames,
	"api-old-players":         SourceBlaseballAPIOldPlayers,
	"site-iliana-stash":       SourceSiteUpdatesIlianaStash,
	"site-internet-archive":   SourceSiteUpdatesInternetArchive,
	"site-risky-drive":        SourceSiteUpdatesRiskyDrive,
	"site-user-provided":      SourceSiteUpdatesUserProvided,
}

// ParseSource accepts either a UUID or a well-known source name.
func ParseSource(s string) (SourceID, error) {
	if id, ok := KnownSources[s]; ok {
		return id, nil
	}
	return uuid.Parse(s)
}
