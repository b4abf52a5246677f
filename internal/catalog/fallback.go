package catalog

// fallbackTitles is served by clients when the gateway cannot produce a
// first page, so the listing is never blank.
var fallbackTitles = []Title{
	{ID: 693134, Title: "Dune: Part Two", Year: 2024, Type: TypeMovie, PosterPath: "/8b8R8l88Qje9dn9d7U9i4gQ3w0E.jpg", TMDBID: 693134, TMDBType: TypeMovie},
	{ID: 1011985, Title: "Kung Fu Panda 4", Year: 2024, Type: TypeMovie, PosterPath: "/kDp1vUBnMpe8ak4rjgl3x2zYyJ1.jpg", TMDBID: 1011985, TMDBType: TypeMovie},
	{ID: 786892, Title: "Furiosa: A Mad Max Saga", Year: 2024, Type: TypeMovie, PosterPath: "/iXU8O5e2VJ8w4z1qX5pZf6fY3zM.jpg", TMDBID: 786892, TMDBType: TypeMovie},
	{ID: 1022789, Title: "Inside Out 2", Year: 2024, Type: TypeMovie, PosterPath: "/9T9c4sR2Q5Y2Zf0Q0vL3b0vL3b0.jpg", TMDBID: 1022789, TMDBType: TypeMovie},
	{ID: 557, Title: "Spider-Man", Year: 2002, Type: TypeMovie, PosterPath: "/rZd0yYc2qL9VvKqY6vL2qL9VvKq.jpg", TMDBID: 557, TMDBType: TypeMovie},
	{ID: 27205, Title: "Inception", Year: 2010, Type: TypeMovie, PosterPath: "/9gk7adHYe7T0y1hM0c8kZf3vL3b0.jpg", TMDBID: 27205, TMDBType: TypeMovie},
	{ID: 299536, Title: "Avengers: Infinity War", Year: 2018, Type: TypeMovie, PosterPath: "/7WsyChQLEftFiDOVTGkv3hFpyyt.jpg", TMDBID: 299536, TMDBType: TypeMovie},
	{ID: 299534, Title: "Avengers: Endgame", Year: 2019, Type: TypeMovie, PosterPath: "/or06FN3Dka5tukK1e9sl16pB3iy.jpg", TMDBID: 299534, TMDBType: TypeMovie},
	{ID: 550, Title: "Fight Club", Year: 1999, Type: TypeMovie, PosterPath: "/pB8BM7pdSp6B7k3vTw9vY5c9vL3.jpg", TMDBID: 550, TMDBType: TypeMovie},
	{ID: 671, Title: "Harry Potter and the Philosopher's Stone", Year: 2001, Type: TypeMovie, PosterPath: "/wuMc08iL3s1Z8z6vL3b0vL3b0.jpg", TMDBID: 671, TMDBType: TypeMovie},
	{ID: 603, Title: "The Matrix", Year: 1999, Type: TypeMovie, PosterPath: "/f89U3ADr1oiB1s9GkdPOEpXUk5H.jpg", TMDBID: 603, TMDBType: TypeMovie},
	{ID: 13, Title: "Forrest Gump", Year: 1994, Type: TypeMovie, PosterPath: "/arw2u9a6vL3b0vL3b0vL3b0.jpg", TMDBID: 13, TMDBType: TypeMovie},
	{ID: 238, Title: "The Godfather", Year: 1972, Type: TypeMovie, PosterPath: "/3bhkrj58Vtu7enU5V9O9fQ2L1f0.jpg", TMDBID: 238, TMDBType: TypeMovie},
	{ID: 155, Title: "The Dark Knight", Year: 2008, Type: TypeMovie, PosterPath: "/qJ2tW6WMUDux911r6m7haRef0WH.jpg", TMDBID: 155, TMDBType: TypeMovie},
}

// FallbackTitles returns a fresh copy of the static offline list.
func FallbackTitles() []Title {
	out := make([]Title, len(fallbackTitles))
	copy(out, fallbackTitles)
	return out
}
