// Package main seeds a dsein store with demo users, follow edges, likes and
// invites.
//
// All writes go through the services, so counters and indexes stay
// consistent with the edges.
//
// Usage:
//
//	DATA_PATH=~/dsein/data go run ./cmd/seed
//	DATA_PATH=~/dsein/data go run ./cmd/seed -users 50 -seed 7
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/dseinapp/dsein-server/internal/config"
	"github.com/dseinapp/dsein-server/internal/di/providers"
	"github.com/dseinapp/dsein-server/internal/domain"
	"github.com/dseinapp/dsein-server/internal/logger"
	"github.com/dseinapp/dsein-server/internal/service"
	"github.com/dseinapp/dsein-server/internal/validation"
)

var (
	numUsers    = flag.Int("users", 20, "Number of demo users to create")
	postsEach   = flag.Int("posts", 3, "Posts per user that receive likes")
	invitesEach = flag.Int("invites", 1, "Invites each user issues")
	randSeed    = flag.Int64("seed", 0, "Random seed (default: current time)")
)

var firstNames = []string{
	"Ada", "Bela", "Chidi", "Dana", "Emeka", "Farah", "Goro", "Hana", "Ines", "Jun",
	"Kofi", "Lena", "Mika", "Nora", "Omar", "Pia", "Quinn", "Rafa", "Sana", "Tomas",
}

func main() {
	flag.Parse()

	cfg, err := config.Load(nil)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	lg := logger.New(logger.Config{Level: logger.ParseLevel("warn"), Environment: cfg.App.Environment})

	ctx := context.Background()
	st, err := providers.OpenStore(ctx, cfg, lg.WithComponent("store"), nil)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer st.Close()

	fmt.Printf("Seeding %s store at %s\n", st.Backend(), cfg.Store.DataPath)

	activity := service.NewActivityService(st, nil, lg.WithComponent("activity"))
	s := &seeder{
		directory: service.NewDirectoryService(st, nil, validation.New(), nil, lg.WithComponent("directory"), cfg.Invites.DefaultQuota),
		follows:   service.NewFollowService(st, nil, nil, lg.WithComponent("follow")),
		likes:     service.NewLikeService(st, nil, nil, lg.WithComponent("like")),
		invites:   service.NewInviteService(st, activity, nil, nil, lg.WithComponent("invites"), cfg.Invites.Expiry),
	}

	seed := *randSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	users := s.createUsers(ctx, rng, *numUsers)
	if len(users) == 0 {
		log.Fatal("No users created")
	}

	follows := s.createFollows(ctx, rng, users)
	likes := s.createLikes(ctx, rng, users, *postsEach)
	invites := s.createInvites(ctx, users, *invitesEach)

	fmt.Printf("\nDone: %d users, %d follows, %d likes, %d invites (seed %d)\n",
		len(users), follows, likes, invites, seed)
}

type seeder struct {
	directory *service.DirectoryService
	follows   *service.FollowService
	likes     *service.LikeService
	invites   *service.InviteService
}

func (s *seeder) createUsers(ctx context.Context, rng *rand.Rand, n int) []*domain.User {
	users := make([]*domain.User, 0, n)
	for i := range n {
		name := firstNames[rng.Intn(len(firstNames))]
		u, err := s.directory.Register(ctx, service.RegisterRequest{
			ID:          uuid.NewString(),
			Username:    fmt.Sprintf("%s_%04d", name, rng.Intn(10000)),
			DisplayName: fmt.Sprintf("%s %c.", name, 'A'+rune(i%26)),
		})
		if err != nil {
			log.Printf("  skip user: %v", err)
			continue
		}
		fmt.Printf("  user @%s (%s)\n", u.Username, u.ID)
		users = append(users, u)
	}
	return users
}

// createFollows gives each user a random set of followees, roughly a third
// of the network.
func (s *seeder) createFollows(ctx context.Context, rng *rand.Rand, users []*domain.User) int {
	count := 0
	for _, actor := range users {
		for _, target := range users {
			if actor.ID == target.ID || rng.Intn(3) != 0 {
				continue
			}
			res, err := s.follows.Follow(ctx, actor.ID, target.ID)
			if err != nil {
				log.Printf("  follow %s -> %s: %v", actor.Username, target.Username, err)
				continue
			}
			if !res.AlreadyFollowing {
				count++
			}
		}
	}
	return count
}

func (s *seeder) createLikes(ctx context.Context, rng *rand.Rand, users []*domain.User, posts int) int {
	count := 0
	for _, owner := range users {
		for range posts {
			postID := uuid.NewString()
			for _, actor := range users {
				if rng.Intn(4) != 0 {
					continue
				}
				res, err := s.likes.Like(ctx, actor.ID, postID, owner.ID)
				if err != nil {
					log.Printf("  like %s by %s: %v", postID, actor.Username, err)
					continue
				}
				if !res.AlreadyLiked {
					count++
				}
			}
		}
	}
	return count
}

func (s *seeder) createInvites(ctx context.Context, users []*domain.User, each int) int {
	count := 0
	for _, u := range users {
		for range each {
			res, err := s.invites.CreateInvite(ctx, u.ID)
			if err != nil {
				log.Printf("  invite for %s: %v", u.Username, err)
				break
			}
			fmt.Printf("  invite %s from @%s\n", res.Invite.Code, u.Username)
			count++
		}
	}
	return count
}
